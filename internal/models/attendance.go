package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// ErrDuplicateAttendance is returned by stores when the
// (user, target type, target id) tuple already has a record.
var ErrDuplicateAttendance = errors.New("attendance already recorded")

type Attendance struct {
	bun.BaseModel `bun:"table:attendance"`

	ID         string     `bun:"id,pk" json:"id"`
	UserID     string     `bun:"user_id,notnull,unique:attendance_target" json:"user_id"`
	TargetType TargetType `bun:"target_type,notnull,unique:attendance_target" json:"target_type"`
	TargetID   string     `bun:"target_id,notnull,unique:attendance_target" json:"target_id"`
	MarkedBy   string     `bun:"marked_by" json:"marked_by"`
	MarkedAt   time.Time  `bun:"marked_at,notnull" json:"marked_at"`
}

func (a Attendance) Ref() TargetRef {
	return TargetRef{Type: a.TargetType, ID: a.TargetID}
}

// AttendanceChange is the payload carried by the push channel.
type AttendanceChange struct {
	Op     string     `json:"op"` // INSERT or UPDATE
	Record Attendance `json:"record"`
}

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)
