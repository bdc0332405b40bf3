package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	checkindb "ms-checkin/internal/checkin/db"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

func main() {
	reset := flag.Bool("reset", false, "drop the check-in tables before seeding")
	flag.Parse()

	log := logger.NewLogger("seed")
	defer log.Close()

	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	if *reset {
		log.Info("SEED", "Dropping tables...")
		if err := checkindb.DropSchema(ctx, db); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}

	log.Info("SEED", "Creating tables...")
	if err := checkindb.CreateSchema(ctx, db); err != nil {
		log.Fatal("SEED", err.Error())
	}

	log.Info("SEED", "Seeding sample festival...")
	if err := seedData(ctx, db); err != nil {
		log.Fatal("SEED", err.Error())
	}

	log.Info("SEED", "Done.")
}

func seedData(ctx context.Context, db *bun.DB) error {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(12 * time.Hour)

	users := []models.User{
		{ID: "user001", FullName: "Asha Raman", Email: "asha@example.com", College: "Tech Institute", Role: models.RoleParticipant, IsActive: true, CreatedAt: now},
		{ID: "user002", FullName: "Bilal Khan", Email: "bilal@example.com", College: "City College", Role: models.RoleParticipant, IsActive: true, CreatedAt: now},
		{ID: "user003", FullName: "Chen Wei", Email: "chen@example.com", College: "City College", Role: models.RoleParticipant, IsActive: false, CreatedAt: now},
		{ID: "op001", FullName: "Gate Volunteer", Email: "gate@example.com", Role: "volunteer", IsActive: true, CreatedAt: now},
	}
	events := []models.Event{
		{ID: "event001", Name: "Opening Keynote", IsActive: true, StartTime: &dayStart, EndTime: &dayEnd, CreatedAt: now},
		{ID: "event002", Name: "Hackathon", IsActive: true, CreatedAt: now},
	}
	workshops := []models.Workshop{
		{ID: "workshop001", Name: "Robotics 101", IsActive: true, CreatedAt: now},
		{ID: "workshop002", Name: "Drone Lab", IsActive: true, CreatedAt: now},
	}
	comboItems := []models.ComboItem{
		{ComboID: "combo001", TargetType: models.TargetEvent, TargetID: "event002"},
		{ComboID: "combo001", TargetType: models.TargetWorkshop, TargetID: "workshop002"},
	}
	registrations := []models.Registration{
		{ID: "reg001", UserID: "user001", TargetType: models.TargetWorkshop, TargetID: "workshop001", PaymentStatus: models.PaymentApproved, CreatedAt: now},
		{ID: "reg002", UserID: "user002", TargetType: models.TargetCombo, TargetID: "combo001", PaymentStatus: models.PaymentApproved, CreatedAt: now},
		{ID: "reg003", UserID: "user002", TargetType: models.TargetEvent, TargetID: "event001", PaymentStatus: models.PaymentPending, CreatedAt: now},
		{ID: "reg004", UserID: "user003", TargetType: models.TargetEvent, TargetID: "event001", PaymentStatus: models.PaymentApproved, CreatedAt: now},
	}

	for _, rows := range []interface{}{&users, &events, &workshops, &registrations} {
		if _, err := db.NewInsert().Model(rows).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert %T: %w", rows, err)
		}
	}

	exists, err := db.NewSelect().Model((*models.ComboItem)(nil)).Where("combo_id = ?", "combo001").Exists(ctx)
	if err != nil {
		return fmt.Errorf("check combo items: %w", err)
	}
	if !exists {
		if _, err := db.NewInsert().Model(&comboItems).Exec(ctx); err != nil {
			return fmt.Errorf("insert combo items: %w", err)
		}
	}
	return nil
}
