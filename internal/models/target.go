package models

import (
	"fmt"
	"time"
)

type TargetType string

const (
	TargetEvent    TargetType = "event"
	TargetWorkshop TargetType = "workshop"
	TargetCombo    TargetType = "combo"
)

// Attendable reports whether attendance can be recorded against the type.
// Combos only grant access, they are never attended themselves.
func (t TargetType) Attendable() bool {
	return t == TargetEvent || t == TargetWorkshop
}

// TargetRef identifies a single event or workshop.
type TargetRef struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id"`
}

// Key is the "<type>:<id>" form used for set membership.
func (r TargetRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// Target is the store-neutral view of an event or workshop.
type Target struct {
	Type     TargetType
	ID       string
	Name     string
	IsActive bool
	StartsAt *time.Time
	EndsAt   *time.Time
}

func (t Target) Ref() TargetRef {
	return TargetRef{Type: t.Type, ID: t.ID}
}

// InWindow is true when the target has no complete window or now falls inside it.
func (t Target) InWindow(now time.Time) bool {
	if t.StartsAt == nil || t.EndsAt == nil {
		return true
	}
	return !now.Before(*t.StartsAt) && !now.After(*t.EndsAt)
}
