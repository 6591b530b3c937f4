// Package accounts manages the admin and department-head logins of the dashboard.
package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"civicsync-admin/logging"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

var (
	// ErrInvalidCredentials is returned by Login for unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidAccount is returned when a new account is incomplete or malformed.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrEmailTaken is returned when a department head with the same email exists.
	ErrEmailTaken = errors.New("email already registered")
)

// MinPasswordLength is the shortest accepted department-head password.
const MinPasswordLength = 6

// maxHeadAttempts bounds how many sequence numbers CreateHead tries after collisions.
const maxHeadAttempts = 50

// Role of an authenticated user.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDepartmentHead Role = "department_head"
)

// Principal is an authenticated user.
type Principal struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
}

// AdminCredentials are the configured super-user credentials.
type AdminCredentials struct {
	Email    string
	Password string
}

// Service creates department heads and authenticates logins.
type Service struct {
	store  store.Store
	admin  AdminCredentials
	logger logging.Logger
	now    func() time.Time
}

// NewService creates a Service. An empty admin email disables the admin login.
func NewService(s store.Store, admin AdminCredentials, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{store: s, admin: admin, logger: logger, now: time.Now}
}

// CreateHead registers a department head under department_heads/{Department}/{headId}. The
// head id is {code}{seq:03d} where seq follows the number of heads already stored for the
// department.
func (s *Service) CreateHead(ctx context.Context, email, password, department string) (models.DepartmentHead, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return models.DepartmentHead{}, fmt.Errorf("%w: email %q", ErrInvalidAccount, email)
	}
	if len(password) < MinPasswordLength {
		return models.DepartmentHead{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidAccount, MinPasswordLength)
	}
	department = strings.TrimSpace(department)
	if department == "" {
		return models.DepartmentHead{}, fmt.Errorf("%w: department is required", ErrInvalidAccount)
	}

	heads, err := s.heads(ctx)
	if err != nil {
		return models.DepartmentHead{}, err
	}
	display := models.DepartmentDisplayName(department)
	count := 0
	for _, h := range heads {
		if strings.EqualFold(h.Email, email) {
			return models.DepartmentHead{}, fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		if h.Department == display {
			count++
		}
	}

	head := models.DepartmentHead{Email: email, Password: password, Department: display, CreatedAt: s.now().UTC()}
	if err := head.HashPassword(); err != nil {
		return models.DepartmentHead{}, fmt.Errorf("hash password: %w", err)
	}

	errTaken := errors.New("head id taken")
	for seq := count + 1; seq <= count+maxHeadAttempts; seq++ {
		head.HeadID = models.HeadID(department, seq)
		_, err := s.store.Transact(ctx, store.DepartmentHeadPath(display, head.HeadID), func(cur any) (any, error) {
			if cur != nil {
				return nil, errTaken
			}
			return head.Record(), nil
		})
		if errors.Is(err, errTaken) {
			continue
		}
		if err != nil {
			return models.DepartmentHead{}, fmt.Errorf("create department head: %w", err)
		}

		s.logger.Info("department head created", "head", head.HeadID, "department", display)
		return head, nil
	}

	return models.DepartmentHead{}, fmt.Errorf("create department head: no free id in %s: %w", display, store.ErrConflict)
}

// Login authenticates the configured admin or a department head. Department heads are
// found by a linear scan of every department.
func (s *Service) Login(ctx context.Context, email, password string) (Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	if s.admin.Email != "" && strings.EqualFold(email, s.admin.Email) {
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1 {
			return Principal{ID: "admin", Email: s.admin.Email, Role: RoleAdmin}, nil
		}
		return Principal{}, ErrInvalidCredentials
	}

	heads, err := s.heads(ctx)
	if err != nil {
		return Principal{}, err
	}
	for _, h := range heads {
		if !strings.EqualFold(h.Email, email) {
			continue
		}
		if h.PasswordHash == "" {
			s.logger.Warn("department head has no password hash, login refused", "head", h.HeadID)
			return Principal{}, ErrInvalidCredentials
		}
		if !h.ComparePassword(password) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{ID: h.HeadID, Email: h.Email, Role: RoleDepartmentHead, Department: h.Department}, nil
	}

	return Principal{}, ErrInvalidCredentials
}

// Heads returns every department head, ordered by department and head id.
func (s *Service) Heads(ctx context.Context) ([]models.DepartmentHead, error) {
	return s.heads(ctx)
}

func (s *Service) heads(ctx context.Context) ([]models.DepartmentHead, error) {
	snap, err := s.store.Get(ctx, store.DepartmentHeadsPath)
	if err != nil {
		return nil, fmt.Errorf("read department heads: %w", err)
	}

	out := []models.DepartmentHead{}
	departments := snap.Map()
	for _, dept := range store.SortedKeys(departments) {
		records, _ := departments[dept].(map[string]any)
		for _, id := range store.SortedKeys(records) {
			h := models.DecodeDepartmentHead(id, records[id])
			if h.Department == "" {
				h.Department = dept
			}
			out = append(out, h)
		}
	}

	return out, nil
}
