package auth

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

const testPassword = "front-desk-2023"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&entities.Staff{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(db, config.Auth{Mode: config.AuthModeLocal, BcryptCost: 4, JWTSecret: "test-secret", TokenExpiry: time.Hour})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestService_CreateStaff(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	tests := []struct {
		name     string
		email    string
		staff    string
		password string
		role     entities.StaffRole
		wantErr  error
	}{
		{"valid admin", "Admin@Library.test", "Head Librarian", testPassword, entities.StaffRoleAdmin, nil},
		{"default role", "desk@library.test", "Desk", testPassword, "", nil},
		{"missing email", "", "Desk", testPassword, entities.StaffRoleLibrarian, ErrEmailRequired},
		{"missing name", "x@library.test", " ", testPassword, entities.StaffRoleLibrarian, ErrNameRequired},
		{"missing password", "x@library.test", "X", "", entities.StaffRoleLibrarian, ErrPasswordRequired},
		{"invalid email", "not-an-email", "X", testPassword, entities.StaffRoleLibrarian, ErrEmailInvalid},
		{"short password", "x@library.test", "X", "short", entities.StaffRoleLibrarian, ErrPasswordTooShort},
		{"invalid role", "x@library.test", "X", testPassword, entities.StaffRole("janitor"), ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staff, err := svc.CreateStaff(tt.email, tt.staff, tt.password, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateStaff() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateStaff() unexpected error = %v", err)
			}
			if staff.PasswordHash == "" || staff.PasswordHash == tt.password {
				t.Error("password was not hashed")
			}
			if staff.Status != entities.StaffStatusActive {
				t.Errorf("Status = %v, want active", staff.Status)
			}
		})
	}

	admin, err := svc.Authenticate("admin@library.test", testPassword)
	if err != nil {
		t.Fatalf("emails should be stored lower-cased: %v", err)
	}
	if admin.Role != entities.StaffRoleAdmin {
		t.Errorf("Role = %v, want admin", admin.Role)
	}
}

func TestService_CreateStaff_Duplicate(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	if _, err := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian); err != nil {
		t.Fatalf("CreateStaff() error = %v", err)
	}
	_, err := svc.CreateStaff("DESK@library.test", "Other", testPassword, entities.StaffRoleLibrarian)
	if err != ErrStaffExists {
		t.Errorf("expected ErrStaffExists, got %v", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	if _, err := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian); err != nil {
		t.Fatalf("CreateStaff() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "desk@library.test", testPassword, nil},
		{"wrong password", "desk@library.test", "wrong-password", ErrInvalidCredentials},
		{"unknown email", "nobody@library.test", testPassword, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staff, err := svc.Authenticate(tt.email, tt.password)
			if err != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && staff.LastLoginAt == nil {
				t.Error("LastLoginAt was not set")
			}
		})
	}
}

func TestService_Authenticate_Disabled(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	staff, _ := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian)
	if _, err := svc.SetStatus(staff.ID, entities.StaffStatusDisabled); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	if _, err := svc.Authenticate("desk@library.test", testPassword); err != ErrAccountDisabled {
		t.Errorf("Authenticate() error = %v, want %v", err, ErrAccountDisabled)
	}
	// a wrong password on a disabled account still reads as bad credentials
	if _, err := svc.Authenticate("desk@library.test", "wrong-password"); err != ErrInvalidCredentials {
		t.Errorf("Authenticate() error = %v, want %v", err, ErrInvalidCredentials)
	}
}

func TestService_Authenticate_Lockout(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	svc.config.MaxLoginAttempts = 3
	svc.config.LockoutDuration = time.Minute
	now := time.Now()
	svc.now = func() time.Time { return now }

	if _, err := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian); err != nil {
		t.Fatalf("CreateStaff() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = svc.Authenticate("desk@library.test", "wrong-password")
	}

	if _, err := svc.Authenticate("desk@library.test", testPassword); err != ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	staff, err := svc.Authenticate("desk@library.test", testPassword)
	if err != nil {
		t.Fatalf("login after lockout expiry failed: %v", err)
	}
	var stored entities.Staff
	db.First(&stored, staff.ID)
	if stored.FailedLoginCount != 0 || stored.LockedUntil != nil {
		t.Errorf("failed login state not reset: count=%d locked=%v", stored.FailedLoginCount, stored.LockedUntil)
	}
}

func TestService_ValidateToken(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	staff, _ := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian)

	token, _, err := svc.IssueToken(staff)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	got, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got.ID != staff.ID {
		t.Errorf("ValidateToken() staff = %d, want %d", got.ID, staff.ID)
	}

	if _, err := svc.SetStatus(staff.ID, entities.StaffStatusDisabled); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if _, err := svc.ValidateToken(token); err != ErrAccountDisabled {
		t.Errorf("ValidateToken() for disabled staff error = %v, want %v", err, ErrAccountDisabled)
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	staff, _ := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian)

	if err := svc.ChangePassword(staff.ID, "wrong-password", "new-password-123"); err != ErrInvalidCredentials {
		t.Errorf("ChangePassword() with wrong current password error = %v, want %v", err, ErrInvalidCredentials)
	}
	if err := svc.ChangePassword(staff.ID, testPassword, "short"); err != ErrPasswordTooShort {
		t.Errorf("ChangePassword() with short password error = %v, want %v", err, ErrPasswordTooShort)
	}
	if err := svc.ChangePassword(staff.ID, testPassword, "new-password-123"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.Authenticate("desk@library.test", "new-password-123"); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
	if err := svc.ChangePassword(999, testPassword, "new-password-123"); err != ErrStaffNotFound {
		t.Errorf("ChangePassword() for unknown staff error = %v, want %v", err, ErrStaffNotFound)
	}
}

func TestService_ListAndHasStaff(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	has, err := svc.HasStaff()
	if err != nil || has {
		t.Fatalf("HasStaff() = %v, %v; want false", has, err)
	}
	_, _ = svc.CreateStaff("b@library.test", "Bea", testPassword, entities.StaffRoleLibrarian)
	_, _ = svc.CreateStaff("a@library.test", "Abe", testPassword, entities.StaffRoleAdmin)

	has, _ = svc.HasStaff()
	if !has {
		t.Error("HasStaff() = false after creating staff")
	}
	staff, err := svc.ListStaff()
	if err != nil {
		t.Fatalf("ListStaff() error = %v", err)
	}
	if len(staff) != 2 || staff[0].Name != "Abe" {
		t.Errorf("ListStaff() = %+v, want Abe first", staff)
	}

	if _, err := svc.SetStatus(staff[0].ID, "retired"); err != ErrInvalidStatus {
		t.Errorf("SetStatus() error = %v, want %v", err, ErrInvalidStatus)
	}
	if _, err := svc.SetStatus(999, entities.StaffStatusDisabled); err != ErrStaffNotFound {
		t.Errorf("SetStatus() error = %v, want %v", err, ErrStaffNotFound)
	}
}

func TestService_Authenticate_RehashesOnCostChange(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	if _, err := svc.CreateStaff("desk@library.test", "Desk", testPassword, entities.StaffRoleLibrarian); err != nil {
		t.Fatalf("CreateStaff() error = %v", err)
	}

	svc.config.BcryptCost = 5
	if _, err := svc.Authenticate("desk@library.test", testPassword); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	var stored entities.Staff
	if err := db.Where("email = ?", "desk@library.test").First(&stored).Error; err != nil {
		t.Fatalf("load staff: %v", err)
	}
	if NeedsRehash(stored.PasswordHash, 5) {
		t.Error("hash should have been upgraded to the configured cost")
	}
	if _, err := svc.Authenticate("desk@library.test", testPassword); err != nil {
		t.Errorf("login with the upgraded hash failed: %v", err)
	}
}
