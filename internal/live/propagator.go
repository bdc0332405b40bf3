// Package live drives the participant display: it watches for the
// participant's attendance through the push channel and a polling fallback
// and confirms exactly once.
package live

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
)

type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnConnected  ConnState = "connected"
	ConnError      ConnState = "error"
	ConnClosed     ConnState = "closed"
)

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseDestroyed Phase = "destroyed"
	PhaseConfirmed Phase = "confirmed"
)

const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// View is what the display renders.
type View struct {
	ParticipantID string     `json:"participant_id"`
	Phase         Phase      `json:"phase"`
	Connection    ConnState  `json:"connection"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	Source        string     `json:"source,omitempty"`
}

// Subscription is a live feed of attendance changes for one participant.
// Close is safe to call more than once.
type Subscription interface {
	Events() <-chan models.AttendanceChange
	States() <-chan ConnState
	Close() error
}

type PushChannel interface {
	Subscribe(ctx context.Context, participantID string) (Subscription, error)
}

type LatestFetcher interface {
	FindLatestAttendance(ctx context.Context, userID string) (*models.Attendance, error)
}

type Propagator struct {
	ParticipantID string
	Push          PushChannel
	Store         LatestFetcher
	PollInterval  time.Duration
	ConfirmDelay  time.Duration
	Logger        *logger.Logger
}

func NewPropagator(participantID string, push PushChannel, store LatestFetcher, pollInterval, confirmDelay time.Duration, log *logger.Logger) *Propagator {
	return &Propagator{
		ParticipantID: participantID,
		Push:          push,
		Store:         store,
		PollInterval:  pollInterval,
		ConfirmDelay:  confirmDelay,
		Logger:        log,
	}
}

// Run emits views until the participant is confirmed (returns nil) or ctx is
// done (returns ctx.Err()). Sending on views blocks until the consumer reads
// or ctx is done.
func (p *Propagator) Run(ctx context.Context, views chan<- View) error {
	view := View{ParticipantID: p.ParticipantID, Phase: PhaseWaiting, Connection: ConnConnecting}
	emit := func() bool {
		select {
		case views <- view:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !emit() {
		return ctx.Err()
	}

	var events <-chan models.AttendanceChange
	var states <-chan ConnState
	if p.Push != nil {
		sub, err := p.Push.Subscribe(ctx, p.ParticipantID)
		if err != nil {
			p.Logger.Warn("DISPLAY", fmt.Sprintf("[%s] Push subscribe failed, polling only: %v", p.ParticipantID, err))
			view.Connection = ConnError
			if !emit() {
				return ctx.Err()
			}
		} else {
			defer sub.Close()
			events = sub.Events()
			states = sub.States()
		}
	} else {
		view.Connection = ConnClosed
	}

	interval := p.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var confirm <-chan time.Time
	var lastSeen time.Time
	seenAny := false

	detect := func(markedAt time.Time, source string) bool {
		if view.Phase != PhaseWaiting {
			return true
		}
		metrics.DisplayDetections.WithLabelValues(source).Inc()
		p.Logger.LogDisplay(p.ParticipantID, fmt.Sprintf("Attendance detected via %s", source))

		at := markedAt
		view.Phase = PhaseDestroyed
		view.ConfirmedAt = &at
		view.Source = source
		confirm = time.After(p.ConfirmDelay)
		return emit()
	}

	poll := func() bool {
		if view.Phase != PhaseWaiting || p.Store == nil {
			return true
		}
		rec, err := p.Store.FindLatestAttendance(ctx, p.ParticipantID)
		if err != nil || rec == nil {
			return true
		}
		if seenAny && !rec.MarkedAt.After(lastSeen) {
			return true
		}
		seenAny = true
		lastSeen = rec.MarkedAt
		return detect(rec.MarkedAt, SourcePoll)
	}

	if !poll() {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if change.Record.UserID != p.ParticipantID {
				continue
			}
			if change.Op != models.ChangeInsert && change.Op != models.ChangeUpdate {
				continue
			}
			if !detect(change.Record.MarkedAt, SourcePush) {
				return ctx.Err()
			}

		case state, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if state == view.Connection {
				continue
			}
			view.Connection = state
			if !emit() {
				return ctx.Err()
			}

		case <-ticker.C:
			if !poll() {
				return ctx.Err()
			}

		case <-confirm:
			view.Phase = PhaseConfirmed
			metrics.DisplayConfirmations.Inc()
			p.Logger.LogDisplay(p.ParticipantID, "Attendance confirmed")
			emit()
			return nil
		}
	}
}
