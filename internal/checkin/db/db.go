package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-checkin/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// DB is the bun-backed entitlement store. Attendance inserts rely on the
// attendance_target unique constraint created by the schema migrations,
// unless LegacyAttendance is set: the attendance table then belongs to an
// older deployment without the constraint, and the recorder falls back to
// recheck and claims.
type DB struct {
	Bun              *bun.DB
	LegacyAttendance bool
}

// ---------------- PARTICIPANTS ----------------

// FindParticipant returns nil, nil when no user has the id.
func (d *DB) FindParticipant(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ---------------- ENTITLEMENTS ----------------

func (d *DB) ListApprovedRegistrations(ctx context.Context, userID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("user_id = ?", userID).
		Where("payment_status = ?", models.PaymentApproved).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ListComboMembership fetches the bundled targets of every combo in one query.
func (d *DB) ListComboMembership(ctx context.Context, comboIDs []string) ([]models.ComboItem, error) {
	if len(comboIDs) == 0 {
		return nil, nil
	}
	var items []models.ComboItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("combo_id IN (?)", bun.In(comboIDs)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetTargets loads events or workshops by id. Missing ids are simply absent
// from the result.
func (d *DB) GetTargets(ctx context.Context, targetType models.TargetType, ids []string) ([]models.Target, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	switch targetType {
	case models.TargetEvent:
		var events []models.Event
		if err := d.Bun.NewSelect().Model(&events).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
			return nil, err
		}
		targets := make([]models.Target, 0, len(events))
		for _, e := range events {
			targets = append(targets, e.Target())
		}
		return targets, nil
	case models.TargetWorkshop:
		var workshops []models.Workshop
		if err := d.Bun.NewSelect().Model(&workshops).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
			return nil, err
		}
		targets := make([]models.Target, 0, len(workshops))
		for _, w := range workshops {
			targets = append(targets, w.Target())
		}
		return targets, nil
	default:
		return nil, fmt.Errorf("unsupported target type %q", targetType)
	}
}

// ---------------- ATTENDANCE ----------------

// FindAttendance returns nil, nil when the tuple has no record.
func (d *DB) FindAttendance(ctx context.Context, userID string, targetType models.TargetType, targetID string) (*models.Attendance, error) {
	var rec models.Attendance
	err := d.Bun.NewSelect().
		Model(&rec).
		Where("user_id = ?", userID).
		Where("target_type = ?", targetType).
		Where("target_id = ?", targetID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertAttendance inserts the record or reports models.ErrDuplicateAttendance
// when the tuple is already present.
func (d *DB) InsertAttendance(ctx context.Context, rec models.Attendance) error {
	query := d.Bun.NewInsert().Model(&rec)
	if !d.LegacyAttendance {
		// ON CONFLICT needs the constraint to exist
		query = query.On("CONFLICT (user_id, target_type, target_id) DO NOTHING")
	}
	res, err := query.Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return models.ErrDuplicateAttendance
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrDuplicateAttendance
	}
	return nil
}

// FindLatestAttendance returns the most recent record for the user, or nil, nil.
func (d *DB) FindLatestAttendance(ctx context.Context, userID string) (*models.Attendance, error) {
	var rec models.Attendance
	err := d.Bun.NewSelect().
		Model(&rec).
		Where("user_id = ?", userID).
		OrderExpr("marked_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnforcesUniqueAttendance reports whether inserts are protected by the
// attendance_target constraint.
func (d *DB) EnforcesUniqueAttendance() bool {
	return !d.LegacyAttendance
}

// IsUniqueViolation recognises unique constraint errors from postgres and sqlite.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
