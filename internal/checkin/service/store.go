package checkin

import (
	"context"

	"ms-checkin/internal/models"
)

// EntitlementStore is the data the check-in pipeline reads and the
// attendance rows it writes. Lookups return nil, nil for absent rows.
type EntitlementStore interface {
	FindParticipant(ctx context.Context, id string) (*models.User, error)
	ListApprovedRegistrations(ctx context.Context, userID string) ([]models.Registration, error)
	ListComboMembership(ctx context.Context, comboIDs []string) ([]models.ComboItem, error)
	GetTargets(ctx context.Context, targetType models.TargetType, ids []string) ([]models.Target, error)
	FindAttendance(ctx context.Context, userID string, targetType models.TargetType, targetID string) (*models.Attendance, error)
	// InsertAttendance returns models.ErrDuplicateAttendance when the tuple exists.
	InsertAttendance(ctx context.Context, rec models.Attendance) error
	FindLatestAttendance(ctx context.Context, userID string) (*models.Attendance, error)
	// EnforcesUniqueAttendance reports whether inserts are guarded by a
	// uniqueness constraint on (user, target type, target id).
	EnforcesUniqueAttendance() bool
}

// ClaimLocker serializes recording of one tuple across terminals.
type ClaimLocker interface {
	Claim(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// AttendanceNotifier publishes newly recorded attendance on the push channel.
type AttendanceNotifier interface {
	NotifyAttendance(ctx context.Context, change models.AttendanceChange) error
}

// Notifiers fans a change out to several notifiers and returns the first error.
type Notifiers []AttendanceNotifier

func (n Notifiers) NotifyAttendance(ctx context.Context, change models.AttendanceChange) error {
	var firstErr error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyAttendance(ctx, change); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
