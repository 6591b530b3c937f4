package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"civicsync-admin/models"
	"civicsync-admin/store"
)

// ErrInvalidWorker is returned when a registration form is incomplete or malformed.
var ErrInvalidWorker = errors.New("invalid worker")

// maxIDAttempts bounds how many sequence numbers RegisterWorker tries after collisions.
const maxIDAttempts = 50

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// WorkerForm is the input of RegisterWorker.
type WorkerForm struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Department string `json:"department" binding:"required"`
	Pincode    string `json:"pincode" binding:"required"`
	Location   string `json:"location"`
}

// Validate checks the form the way the creation page does.
func (f WorkerForm) Validate() error {
	switch {
	case strings.TrimSpace(f.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidWorker)
	case !phonePattern.MatchString(f.Phone):
		return fmt.Errorf("%w: phone number must be exactly 10 digits", ErrInvalidWorker)
	case strings.TrimSpace(f.Department) == "":
		return fmt.Errorf("%w: department is required", ErrInvalidWorker)
	case strings.TrimSpace(f.Pincode) == "":
		return fmt.Errorf("%w: pincode is required", ErrInvalidWorker)
	}

	return nil
}

// RegisterWorker creates a worker with id {code}-{pincode}-{seq:03d}, where seq follows the
// number of workers already registered for the same department and pincode. The record is
// created only if the id is still free; on collision the next sequence number is tried.
func (d *WorkerDirectory) RegisterWorker(ctx context.Context, form WorkerForm) (models.Worker, error) {
	if err := form.Validate(); err != nil {
		return models.Worker{}, err
	}

	snap, err := d.store.Get(ctx, store.WorkersPath)
	if err != nil {
		return models.Worker{}, fmt.Errorf("register worker: %w", err)
	}

	pincode := strings.TrimSpace(form.Pincode)
	key := form.Department + "_" + pincode
	count := 0
	for _, raw := range snap.Map() {
		rec, _ := raw.(map[string]any)
		if v, _ := rec[models.FieldDepartmentPincode].(string); v == key {
			count++
		}
	}

	errTaken := errors.New("worker id taken")
	for seq := count + 1; seq <= count+maxIDAttempts; seq++ {
		w := models.Worker{
			ID:                models.WorkerID(form.Department, pincode, seq),
			Name:              strings.TrimSpace(form.Name),
			Phone:             form.Phone,
			Department:        form.Department,
			Location:          strings.TrimSpace(form.Location),
			Pincode:           pincode,
			Availability:      models.Available,
			DepartmentPincode: key,
		}

		_, err := d.store.Transact(ctx, store.WorkerPath(w.ID), func(current any) (any, error) {
			if current != nil {
				return nil, errTaken
			}
			return models.WorkerRecord(w), nil
		})
		if errors.Is(err, errTaken) {
			d.logger.Debug("worker id taken, trying next sequence", "worker", w.ID)
			continue
		}
		if err != nil {
			return models.Worker{}, fmt.Errorf("register worker %s: %w", w.ID, err)
		}

		d.logger.Info("worker registered", "worker", w.ID, "department", w.Department)
		return w, nil
	}

	return models.Worker{}, fmt.Errorf("register worker: no free id for %s after %d attempts: %w", key, maxIDAttempts, store.ErrConflict)
}
