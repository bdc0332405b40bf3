package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"

	"github.com/google/uuid"
)

// RecordingOutcome summarises one RecordAll batch.
type RecordingOutcome struct {
	ParticipantID   string              `json:"participant_id"`
	ParticipantName string              `json:"participant_name"`
	Recorded        int                 `json:"recorded"`
	AlreadyRecorded int                 `json:"already_recorded"`
	Errors          []string            `json:"errors,omitempty"`
	Records         []models.Attendance `json:"records,omitempty"`
}

// Succeeded is true when no target failed and at least one was handled.
func (o RecordingOutcome) Succeeded() bool {
	return len(o.Errors) == 0 && o.Recorded+o.AlreadyRecorded > 0
}

// Err classifies per-target failures.
func (o RecordingOutcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	if o.Recorded+o.AlreadyRecorded > 0 {
		return newError(CodePartialRecordingFailure, fmt.Sprintf("%d target(s) failed", len(o.Errors)), nil)
	}
	return newError(CodeStoreUnavailable, fmt.Sprintf("all %d target(s) failed", len(o.Errors)), nil)
}

type targetStatus int

const (
	statusRecorded targetStatus = iota
	statusAlreadyRecorded
)

// Marker identifies who records: the operator stamped on each row and the
// terminal session that owns recording claims.
type Marker struct {
	OperatorID string
	SessionID  string
}

type Recorder struct {
	Store    EntitlementStore
	Claims   ClaimLocker
	Notifier AttendanceNotifier
	Logger   *logger.Logger
	// RecheckDelay is the pause before the second existence check on stores
	// that do not enforce attendance uniqueness.
	RecheckDelay time.Duration
	// ClaimWait bounds how long a terminal waits on a claim held by another
	// terminal before giving up on the target.
	ClaimWait time.Duration
	Now       func() time.Time
}

func NewRecorder(store EntitlementStore, notifier AttendanceNotifier, recheckDelay time.Duration, log *logger.Logger) *Recorder {
	return &Recorder{
		Store:        store,
		Notifier:     notifier,
		Logger:       log,
		RecheckDelay: recheckDelay,
		Now:          time.Now,
	}
}

// RecordAll records attendance for every target independently. Duplicates
// count as already recorded; other failures are collected and do not stop
// the remaining targets.
func (r *Recorder) RecordAll(ctx context.Context, participant *models.User, targets []EligibleTarget, by Marker) RecordingOutcome {
	outcome := RecordingOutcome{
		ParticipantID:   participant.ID,
		ParticipantName: participant.FullName,
	}

	for _, target := range targets {
		status, rec, err := r.recordOne(ctx, participant.ID, target, by)
		if err != nil {
			r.Logger.Error("ATTENDANCE", fmt.Sprintf("Failed to record %s for %s: %v", target.Ref().Key(), participant.ID, err))
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s %s: %v", target.Type, target.Name, err))
			metrics.AttendanceErrors.Inc()
			continue
		}

		switch status {
		case statusRecorded:
			outcome.Recorded++
			outcome.Records = append(outcome.Records, *rec)
			metrics.AttendanceRecorded.WithLabelValues(string(target.Type)).Inc()
			r.Logger.LogAttendance("RECORDED", participant.ID, fmt.Sprintf("%s (%s) by %s", target.Ref().Key(), target.Name, by.OperatorID))
			r.notify(ctx, *rec)
		case statusAlreadyRecorded:
			outcome.AlreadyRecorded++
			metrics.AttendanceDuplicates.Inc()
			r.Logger.LogAttendance("DUPLICATE", participant.ID, target.Ref().Key())
		}
	}

	return outcome
}

func (r *Recorder) recordOne(ctx context.Context, userID string, target EligibleTarget, by Marker) (targetStatus, *models.Attendance, error) {
	existing, err := r.Store.FindAttendance(ctx, userID, target.Type, target.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("check existing attendance: %w", err)
	}
	if existing != nil {
		return statusAlreadyRecorded, nil, nil
	}

	if !r.Store.EnforcesUniqueAttendance() {
		found, err := r.recheck(ctx, userID, target)
		if err != nil {
			return 0, nil, err
		}
		if found {
			return statusAlreadyRecorded, nil, nil
		}

		if r.Claims != nil {
			key := claimKey(userID, target)
			owner := by.SessionID
			if owner == "" {
				owner = uuid.New().String()
			}
			held, found, err := r.claim(ctx, key, owner, userID, target)
			if err != nil {
				return 0, nil, err
			}
			if found {
				return statusAlreadyRecorded, nil, nil
			}
			if held {
				defer func() {
					if err := r.Claims.Release(context.WithoutCancel(ctx), key, owner); err != nil {
						r.Logger.Warn("ATTENDANCE", fmt.Sprintf("Failed to release claim %s: %v", key, err))
					}
				}()
				// the previous holder may have inserted before releasing
				existing, err := r.Store.FindAttendance(ctx, userID, target.Type, target.ID)
				if err != nil {
					return 0, nil, fmt.Errorf("check claimed attendance: %w", err)
				}
				if existing != nil {
					return statusAlreadyRecorded, nil, nil
				}
			}
		}
	}

	rec := models.Attendance{
		ID:         uuid.New().String(),
		UserID:     userID,
		TargetType: target.Type,
		TargetID:   target.ID,
		MarkedBy:   by.OperatorID,
		MarkedAt:   r.now(),
	}
	if err := r.Store.InsertAttendance(ctx, rec); err != nil {
		if errors.Is(err, models.ErrDuplicateAttendance) {
			return statusAlreadyRecorded, nil, nil
		}
		return 0, nil, fmt.Errorf("insert attendance: %w", err)
	}
	return statusRecorded, &rec, nil
}

// claim takes the recording claim for key. While another terminal holds it,
// the tuple is polled until it shows up (found) or the claim frees up, for
// at most ClaimWait. A failing lock backend is logged and recording goes on
// unclaimed.
func (r *Recorder) claim(ctx context.Context, key, owner, userID string, target EligibleTarget) (held, found bool, err error) {
	deadline := time.Now().Add(r.ClaimWait)
	for {
		ok, err := r.Claims.Claim(ctx, key, owner)
		if err != nil {
			r.Logger.Warn("ATTENDANCE", fmt.Sprintf("Claim for %s failed, continuing without it: %v", key, err))
			return false, false, nil
		}
		if ok {
			return true, false, nil
		}

		existing, err := r.Store.FindAttendance(ctx, userID, target.Type, target.ID)
		if err != nil {
			return false, false, fmt.Errorf("check contested attendance: %w", err)
		}
		if existing != nil {
			return false, true, nil
		}
		if !time.Now().Before(deadline) {
			return false, false, fmt.Errorf("claim %s still held by another terminal after %s", key, r.ClaimWait)
		}
		if err := sleep(ctx, r.claimPoll()); err != nil {
			return false, false, err
		}
	}
}

func (r *Recorder) claimPoll() time.Duration {
	if r.RecheckDelay > 0 {
		return r.RecheckDelay
	}
	return 10 * time.Millisecond
}

// recheck waits RecheckDelay and looks for the tuple again.
func (r *Recorder) recheck(ctx context.Context, userID string, target EligibleTarget) (bool, error) {
	if err := sleep(ctx, r.RecheckDelay); err != nil {
		return false, err
	}
	existing, err := r.Store.FindAttendance(ctx, userID, target.Type, target.ID)
	if err != nil {
		return false, fmt.Errorf("recheck attendance: %w", err)
	}
	return existing != nil, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Recorder) notify(ctx context.Context, rec models.Attendance) {
	if r.Notifier == nil {
		return
	}
	change := models.AttendanceChange{Op: models.ChangeInsert, Record: rec}
	if err := r.Notifier.NotifyAttendance(ctx, change); err != nil {
		r.Logger.Warn("PUSH", fmt.Sprintf("Failed to publish attendance %s: %v", rec.ID, err))
	}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func claimKey(userID string, target EligibleTarget) string {
	return fmt.Sprintf("%s:%s:%s", userID, target.Type, target.ID)
}
