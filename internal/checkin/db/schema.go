package db

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"

	"github.com/uptrace/bun"
)

var tables = []interface{}{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.Workshop)(nil),
	(*models.Registration)(nil),
	(*models.ComboItem)(nil),
	(*models.Attendance)(nil),
}

// CreateSchema creates the check-in tables from the bun models. Postgres
// deployments use the SQL migrations instead; this serves sqlite and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Registration)(nil)).
		Index("registrations_user_idx").
		IfNotExists().
		Column("user_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create registrations index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.ComboItem)(nil)).
		Index("combo_items_combo_idx").
		IfNotExists().
		Column("combo_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create combo_items index: %w", err)
	}
	return nil
}

// DropSchema removes the check-in tables in reverse dependency order.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(tables[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", tables[i], err)
		}
	}
	return nil
}
