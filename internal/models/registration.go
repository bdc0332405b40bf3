package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentApproved    PaymentStatus = "approved"
	PaymentDeclined    PaymentStatus = "declined"
	PaymentNotRequired PaymentStatus = "not_required"
)

// Registration links a participant to one event, workshop or combo.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID            string        `bun:"id,pk"`
	UserID        string        `bun:"user_id,notnull"`
	TargetType    TargetType    `bun:"target_type,notnull"`
	TargetID      string        `bun:"target_id,notnull"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull"`
	CreatedAt     time.Time     `bun:"created_at,notnull,default:current_timestamp"`
}

func (r Registration) Ref() TargetRef {
	return TargetRef{Type: r.TargetType, ID: r.TargetID}
}

// ComboItem is one event or workshop bundled into a combo.
type ComboItem struct {
	bun.BaseModel `bun:"table:combo_items"`

	ID         int64      `bun:"id,pk,autoincrement"`
	ComboID    string     `bun:"combo_id,notnull"`
	TargetType TargetType `bun:"target_type,notnull"`
	TargetID   string     `bun:"target_id,notnull"`
}

func (c ComboItem) Ref() TargetRef {
	return TargetRef{Type: c.TargetType, ID: c.TargetID}
}
