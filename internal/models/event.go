package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	Description string     `bun:"description"`
	IsActive    bool       `bun:"is_active,notnull"`
	StartTime   *time.Time `bun:"start_time,nullzero"`
	EndTime     *time.Time `bun:"end_time,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (e Event) Target() Target {
	return Target{Type: TargetEvent, ID: e.ID, Name: e.Name, IsActive: e.IsActive, StartsAt: e.StartTime, EndsAt: e.EndTime}
}

type Workshop struct {
	bun.BaseModel `bun:"table:workshops"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	Description string     `bun:"description"`
	IsActive    bool       `bun:"is_active,notnull"`
	StartTime   *time.Time `bun:"start_time,nullzero"`
	EndTime     *time.Time `bun:"end_time,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (w Workshop) Target() Target {
	return Target{Type: TargetWorkshop, ID: w.ID, Name: w.Name, IsActive: w.IsActive, StartsAt: w.StartTime, EndsAt: w.EndTime}
}
