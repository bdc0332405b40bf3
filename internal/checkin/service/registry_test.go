package checkin_test

import (
	"context"
	"testing"
	"time"

	checkin "ms-checkin/internal/checkin/service"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(store *memoryStore) *checkin.Registry {
	return checkin.NewRegistry(
		checkin.NewResolver(store, nil),
		checkin.NewRecorder(store, nil, 0, nil),
		checkin.SessionConfig{Cooldown: time.Second, ResultDisplay: time.Hour},
		sse.NewBroker[checkin.Update](10),
		nil,
	)
}

func TestRegistry_Lifecycle(t *testing.T) {
	registry := newTestRegistry(workshopFixture())

	terminal, err := registry.Start("op", []models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}})
	require.NoError(t, err)

	got, err := registry.Get(terminal.Controller.ID)
	require.NoError(t, err)
	assert.Same(t, terminal, got)
	assert.Len(t, registry.List(), 1)

	require.NoError(t, registry.Stop(terminal.Controller.ID))

	_, err = registry.Get(terminal.Controller.ID)
	assert.ErrorIs(t, err, checkin.ErrSessionNotFound)
	assert.ErrorIs(t, registry.Stop(terminal.Controller.ID), checkin.ErrSessionNotFound)
	assert.False(t, terminal.Camera.IsOpen())
}

func TestRegistry_StartRejectsEmptySelection(t *testing.T) {
	registry := newTestRegistry(workshopFixture())

	_, err := registry.Start("op", nil)

	assert.ErrorIs(t, err, checkin.ErrNoTargetsSelected)
	assert.Empty(t, registry.List())
}

func TestRegistry_PublishesUpdates(t *testing.T) {
	registry := newTestRegistry(workshopFixture())

	terminal, err := registry.Start("op", []models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := registry.Updates().Subscribe(ctx, terminal.Controller.ID)

	_, err = terminal.Camera.Deliver("p")
	require.NoError(t, err)

	var states []checkin.State
	timeout := time.After(time.Second)
	for len(states) < 2 {
		select {
		case u := <-updates:
			states = append(states, u.State)
		case <-timeout:
			t.Fatalf("timed out waiting for updates, got %v", states)
		}
	}
	assert.Equal(t, []checkin.State{checkin.StateProcessing, checkin.StateResultDisplay}, states)

	registry.StopAll()
	_, open := <-updates
	for open {
		_, open = <-updates
	}
	assert.Empty(t, registry.List())
}
