package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DepartmentHead is an administrative account stored at department_heads/{Department}/{headId}.
// Only the bcrypt hash of the password is persisted.
type DepartmentHead struct {
	HeadID       string    `json:"headId"`
	Email        string    `json:"email"`
	Password     string    `json:"-"`
	PasswordHash string    `json:"-"`
	Department   string    `json:"department"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h *DepartmentHead) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(h.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	h.PasswordHash = string(hashed)
	h.Password = ""
	return nil
}

func (h *DepartmentHead) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(candidate))
	return err == nil
}

// Record returns the stored representation of the account.
func (h *DepartmentHead) Record() map[string]any {
	return map[string]any{
		"headId":       h.HeadID,
		"email":        h.Email,
		"passwordHash": h.PasswordHash,
		"department":   h.Department,
		"createdAt":    h.CreatedAt,
	}
}

// DecodeDepartmentHead builds a DepartmentHead from a raw store record.
func DecodeDepartmentHead(id string, raw any) DepartmentHead {
	rec, _ := raw.(map[string]any)

	h := DepartmentHead{
		HeadID:       stringField(rec, "headId"),
		Email:        stringField(rec, "email"),
		PasswordHash: stringField(rec, "passwordHash"),
		Department:   stringField(rec, "department"),
	}
	if h.HeadID == "" {
		h.HeadID = id
	}
	if t, ok := ParseTime(rec["createdAt"]); ok {
		h.CreatedAt = t
	}

	return h
}
