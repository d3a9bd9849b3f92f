package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var (
	ErrStaffNotFound      = errors.New("staff member not found")
	ErrStaffExists        = errors.New("a staff member with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrNameRequired       = errors.New("name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrEmailInvalid       = errors.New("invalid email format")
)

// Service handles staff accounts and their credentials.
type Service struct {
	db     *gorm.DB
	config config.Auth
	tokens *TokenIssuer
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(db *gorm.DB, cfg config.Auth) (*Service, error) {
	tokens, err := NewTokenIssuer(cfg.JWTSecret, cfg.TokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return &Service{
		db:     db,
		config: cfg,
		tokens: tokens,
		now:    time.Now,
	}, nil
}

// CreateStaff creates a staff account with a hashed password.
func (s *Service) CreateStaff(email, name, password string, role entities.StaffRole) (*entities.Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	// RFC 5321 caps addresses at 254 characters
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}
	if role == "" {
		role = entities.StaffRoleLibrarian
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	staff := &entities.Staff{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       entities.StaffStatusActive,
	}
	if err := s.db.Create(staff).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrStaffExists
		}
		return nil, fmt.Errorf("failed to create staff: %w", err)
	}
	return staff, nil
}

// Authenticate validates credentials and returns the staff member.
// The account is locked after MaxLoginAttempts consecutive failures.
func (s *Service) Authenticate(email, password string) (*entities.Staff, error) {
	var staff entities.Staff
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&staff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find staff: %w", err)
	}

	now := s.now()
	if staff.LockedUntil != nil && now.Before(*staff.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, staff.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			s.recordFailedLogin(&staff)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if staff.Status == entities.StaffStatusDisabled {
		return nil, ErrAccountDisabled
	}

	updates := map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	}
	// the password was just verified, so this is the one chance to move the
	// hash to the configured cost
	if NeedsRehash(staff.PasswordHash, s.config.BcryptCost) {
		if hash, err := HashPassword(password, s.config.BcryptCost); err == nil {
			updates["password_hash"] = hash
			staff.PasswordHash = hash
		}
	}
	s.db.Model(&staff).Updates(updates)
	staff.LastLoginAt = &now
	staff.FailedLoginCount = 0
	staff.LockedUntil = nil

	return &staff, nil
}

func (s *Service) recordFailedLogin(staff *entities.Staff) {
	staff.FailedLoginCount++
	updates := map[string]any{
		"failed_login_count": staff.FailedLoginCount,
	}

	maxAttempts := s.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if staff.FailedLoginCount >= maxAttempts {
		lockoutDuration := s.config.LockoutDuration
		if lockoutDuration == 0 {
			lockoutDuration = 30 * time.Minute
		}
		updates["locked_until"] = s.now().Add(lockoutDuration)
	}

	s.db.Model(staff).Updates(updates)
}

// IssueToken returns a bearer token for staff.
func (s *Service) IssueToken(staff *entities.Staff) (string, time.Time, error) {
	return s.tokens.Issue(staff)
}

// ValidateToken verifies a bearer token and reloads its staff member, so
// disabling an account revokes its outstanding tokens.
func (s *Service) ValidateToken(token string) (*entities.Staff, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	staff, err := s.GetStaffByID(claims.StaffID)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if staff.Status == entities.StaffStatusDisabled {
		return nil, ErrAccountDisabled
	}
	return staff, nil
}

// GetStaffByID retrieves a staff member by ID.
func (s *Service) GetStaffByID(id uint) (*entities.Staff, error) {
	var staff entities.Staff
	if err := s.db.First(&staff, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return &staff, nil
}

// ListStaff returns every staff account ordered by name.
func (s *Service) ListStaff() ([]entities.Staff, error) {
	var staff []entities.Staff
	if err := s.db.Order("name ASC, id ASC").Find(&staff).Error; err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}

// SetStatus enables or disables a staff account.
func (s *Service) SetStatus(id uint, status entities.StaffStatus) (*entities.Staff, error) {
	if status != entities.StaffStatusActive && status != entities.StaffStatusDisabled {
		return nil, ErrInvalidStatus
	}
	result := s.db.Model(&entities.Staff{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update staff status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStaffNotFound
	}
	return s.GetStaffByID(id)
}

// ChangePassword replaces a staff member's password after verifying the
// current one.
func (s *Service) ChangePassword(staffID uint, currentPassword, newPassword string) error {
	staff, err := s.GetStaffByID(staffID)
	if err != nil {
		return err
	}

	if err := CheckPassword(currentPassword, staff.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return ErrInvalidCredentials
		}
		return err
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.db.Model(staff).Update("password_hash", newHash).Error
}

// HasStaff returns true if any staff accounts exist.
func (s *Service) HasStaff() (bool, error) {
	var count int64
	if err := s.db.Model(&entities.Staff{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

// HashPassword hashes a password with the configured cost.
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.config.BcryptCost)
}
