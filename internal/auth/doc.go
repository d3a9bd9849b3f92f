// Package auth authenticates library staff.
//
// Two modes are supported, selected with AUTH_MODE:
//   - "local" (default): staff log in with email and password and receive an
//     HS256 bearer token; a cookie session is started alongside for browser
//     clients, guarded by CSRF protection.
//   - "none": every request acts as an anonymous admin. Use only for local
//     development.
//
// Failed logins are throttled per client IP and email by RateLimiter, and an
// account is locked after AUTH_MAX_LOGIN_ATTEMPTS consecutive failures.
//
//	svc, err := auth.NewService(db, cfg.Auth)
//	mw := auth.NewMiddleware(svc, sessions, cfg.Auth)
//	api.Use(mw.Handler())
//	staffID := auth.GetStaffID(c)
package auth
