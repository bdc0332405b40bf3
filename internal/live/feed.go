package live

import (
	"sync"

	"ms-checkin/internal/models"
)

// Feed is the Subscription handed out by push transports. The transport's
// reader goroutine sends through Deliver and SetState and stops once Done is
// closed.
type Feed struct {
	events chan models.AttendanceChange
	states chan ConnState
	done   chan struct{}

	once    sync.Once
	onClose func() error
	err     error
}

func NewFeed(buffer int, onClose func() error) *Feed {
	if buffer <= 0 {
		buffer = 10
	}
	return &Feed{
		events:  make(chan models.AttendanceChange, buffer),
		states:  make(chan ConnState, 4),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (f *Feed) Events() <-chan models.AttendanceChange { return f.events }
func (f *Feed) States() <-chan ConnState              { return f.states }
func (f *Feed) Done() <-chan struct{}                 { return f.done }

// Deliver queues a change. It returns false once the feed is closed.
func (f *Feed) Deliver(change models.AttendanceChange) bool {
	select {
	case f.events <- change:
		return true
	case <-f.done:
		return false
	}
}

// SetState reports a connection change. States are dropped if nobody keeps
// up; the display only cares about the latest.
func (f *Feed) SetState(state ConnState) {
	select {
	case f.states <- state:
	case <-f.done:
	default:
	}
}

func (f *Feed) Close() error {
	f.once.Do(func() {
		close(f.done)
		if f.onClose != nil {
			f.err = f.onClose()
		}
	})
	return f.err
}
