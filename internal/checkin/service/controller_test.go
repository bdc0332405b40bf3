package checkin_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	checkin "ms-checkin/internal/checkin/service"
	"ms-checkin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingResolver wraps a resolver and counts calls. It panics for
// participants listed in panicFor.
type countingResolver struct {
	inner    checkin.EligibilityResolver
	calls    atomic.Int32
	block    chan struct{}
	panicFor map[string]bool
}

func (r *countingResolver) Resolve(ctx context.Context, participantID string, selected []models.TargetRef) (*checkin.Resolution, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	if r.panicFor[participantID] {
		panic("nil registration row")
	}
	return r.inner.Resolve(ctx, participantID, selected)
}

// updateLog collects published updates.
type updateLog struct {
	mu      sync.Mutex
	updates []checkin.Update
}

func (l *updateLog) publish(u checkin.Update) {
	l.mu.Lock()
	l.updates = append(l.updates, u)
	l.mu.Unlock()
}

func (l *updateLog) snapshot() []checkin.Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]checkin.Update(nil), l.updates...)
}

func (l *updateLog) states() []checkin.State {
	var states []checkin.State
	for _, u := range l.snapshot() {
		states = append(states, u.State)
	}
	return states
}

type failingCamera struct{}

func (failingCamera) Open(checkin.DecodeHandler, func(error)) error { return errors.New("permission denied") }
func (failingCamera) Close() error                                  { return nil }

// workshopFixture seeds participant p with an approved registration on workshop w.
func workshopFixture() *memoryStore {
	store := newMemoryStore(true)
	store.users["p"] = participant("p")
	store.regs["p"] = []models.Registration{
		{ID: "r1", UserID: "p", TargetType: models.TargetWorkshop, TargetID: "w", PaymentStatus: models.PaymentApproved},
	}
	store.addTarget(models.Target{Type: models.TargetWorkshop, ID: "w", Name: "Robotics", IsActive: true})
	return store
}

func newTestController(t *testing.T, store *memoryStore, cfg checkin.SessionConfig) (*checkin.Controller, *countingResolver, *checkin.RemoteCamera, *testClock) {
	t.Helper()
	resolver := &countingResolver{inner: checkin.NewResolver(store, nil)}
	recorder := checkin.NewRecorder(store, nil, 0, nil)
	camera := checkin.NewRemoteCamera()
	clock := &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	c := checkin.NewController("t1", "op", resolver, recorder, camera, cfg, nil, nil)
	c.SetClock(clock.Now)
	t.Cleanup(func() { _ = c.Stop() })
	return c, resolver, camera, clock
}

func rearmed(c *checkin.Controller) func() bool {
	return func() bool { return c.State() == checkin.StateReady }
}

func TestController_ScanRecordsThenCooldown(t *testing.T) {
	store := workshopFixture()
	c, resolver, camera, clock := newTestController(t, store, checkin.SessionConfig{Cooldown: 20 * time.Second, ResultDisplay: 10 * time.Millisecond})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))
	assert.Equal(t, checkin.StateReady, c.State())

	res, err := camera.Deliver(`{"user_id":"p"}`)
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 1, res.Outcome.Recorded)
	assert.Equal(t, "Participant p", res.ParticipantName)
	assert.Equal(t, checkin.StateResultDisplay, c.State())

	require.Eventually(t, rearmed(c), time.Second, 5*time.Millisecond)

	clock.Advance(5 * time.Second)
	res, err = camera.Deliver(`{"user_id":"p"}`)
	require.NoError(t, err)
	assert.Equal(t, checkin.CodeCooldownActive, res.Code)
	assert.Equal(t, 15, res.RemainingSeconds)
	assert.Equal(t, checkin.StateReady, c.State())
	assert.Equal(t, int32(1), resolver.calls.Load(), "cooldown must not reach the resolver")
	assert.Equal(t, 1, store.count("p"))
}

func TestController_CooldownRoundsUp(t *testing.T) {
	store := workshopFixture()
	c, _, camera, clock := newTestController(t, store, checkin.SessionConfig{Cooldown: 20 * time.Second, ResultDisplay: time.Millisecond})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))
	_, err := camera.Deliver("p")
	require.NoError(t, err)
	require.Eventually(t, rearmed(c), time.Second, 5*time.Millisecond)

	clock.Advance(19*time.Second + 100*time.Millisecond)
	res, _ := camera.Deliver("p")
	assert.Equal(t, 1, res.RemainingSeconds)

	clock.Advance(900 * time.Millisecond)
	res, _ = camera.Deliver("p")
	assert.NotEqual(t, checkin.CodeCooldownActive, res.Code)
	assert.True(t, res.OK)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 1, res.Outcome.AlreadyRecorded)
}

func TestController_FailedScanDoesNotArmCooldown(t *testing.T) {
	store := workshopFixture()
	c, _, camera, _ := newTestController(t, store, checkin.SessionConfig{Cooldown: 20 * time.Second, ResultDisplay: time.Millisecond})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))

	res, _ := camera.Deliver("nobody")
	assert.Equal(t, checkin.CodeParticipantNotFound, res.Code)
	assert.False(t, res.OK)
	require.Eventually(t, rearmed(c), time.Second, 5*time.Millisecond)

	res, _ = camera.Deliver("p")
	assert.True(t, res.OK)
}

func TestController_NoEligibleTargets(t *testing.T) {
	store := workshopFixture()
	store.addTarget(models.Target{Type: models.TargetEvent, ID: "e", Name: "Keynote", IsActive: true})
	c, _, camera, _ := newTestController(t, store, checkin.SessionConfig{Cooldown: time.Second, ResultDisplay: time.Millisecond})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetEvent, ID: "e"}}))

	res, _ := camera.Deliver("p")
	assert.Equal(t, checkin.CodeNoEligibleTargets, res.Code)
	assert.Equal(t, 0, store.count("p"))
}

func TestController_MalformedPayload(t *testing.T) {
	store := workshopFixture()
	c, resolver, camera, _ := newTestController(t, store, checkin.SessionConfig{Cooldown: time.Second, ResultDisplay: time.Millisecond})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))

	res, _ := camera.Deliver(`{"name":"x"}`)
	assert.Equal(t, checkin.CodeMalformedPayload, res.Code)
	assert.Equal(t, int32(0), resolver.calls.Load())
}

func TestController_DecodesIgnoredWhileProcessing(t *testing.T) {
	store := workshopFixture()
	c, resolver, camera, _ := newTestController(t, store, checkin.SessionConfig{Cooldown: time.Second, ResultDisplay: time.Second})
	resolver.block = make(chan struct{})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))

	done := make(chan checkin.ScanResult)
	go func() {
		res, _ := camera.Deliver("p")
		done <- res
	}()

	require.Eventually(t, func() bool { return c.State() == checkin.StateProcessing }, time.Second, time.Millisecond)

	res, err := camera.Deliver("p")
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	close(resolver.block)
	first := <-done
	assert.True(t, first.OK)

	// still showing the result
	res, _ = camera.Deliver("p")
	assert.True(t, res.Ignored)
	assert.Equal(t, int32(1), resolver.calls.Load())
	assert.Equal(t, 1, store.count("p"))
}

func TestController_StartValidatesSelection(t *testing.T) {
	store := workshopFixture()
	c, _, camera, _ := newTestController(t, store, checkin.SessionConfig{})

	err := c.Start(nil)
	assert.ErrorIs(t, err, checkin.ErrNoTargetsSelected)

	err = c.Start([]models.TargetRef{{Type: models.TargetCombo, ID: "c"}})
	assert.Equal(t, checkin.CodeInvalidTarget, checkin.CodeOf(err))

	assert.Equal(t, checkin.StateIdle, c.State())
	assert.False(t, camera.IsOpen())
}

func TestController_CameraFailure(t *testing.T) {
	store := workshopFixture()
	c := checkin.NewController("t1", "op", checkin.NewResolver(store, nil), checkin.NewRecorder(store, nil, 0, nil), failingCamera{}, checkin.SessionConfig{}, nil, nil)

	err := c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}})

	assert.ErrorIs(t, err, checkin.ErrCameraUnavailable)
	assert.Equal(t, checkin.StateStopped, c.State())
}

func TestController_StopReleasesCamera(t *testing.T) {
	store := workshopFixture()
	var updates []checkin.Update
	var mu sync.Mutex
	camera := checkin.NewRemoteCamera()
	c := checkin.NewController("t1", "op", checkin.NewResolver(store, nil), checkin.NewRecorder(store, nil, 0, nil), camera, checkin.SessionConfig{ResultDisplay: time.Hour}, nil, func(u checkin.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))
	assert.True(t, camera.IsOpen())

	_, err := camera.Deliver("p")
	require.NoError(t, err)
	assert.Equal(t, checkin.StateResultDisplay, c.State())

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	assert.Equal(t, checkin.StateStopped, c.State())
	assert.False(t, camera.IsOpen())
	_, err = camera.Deliver("p")
	assert.ErrorIs(t, err, checkin.ErrCameraUnavailable)

	snap := c.Snapshot()
	assert.Empty(t, snap.Selection)
	assert.Nil(t, snap.Result)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	assert.Equal(t, checkin.StateStopped, updates[len(updates)-1].State)
}

func TestController_UpdateSelection(t *testing.T) {
	store := workshopFixture()
	c, _, camera, _ := newTestController(t, store, checkin.SessionConfig{ResultDisplay: time.Millisecond})

	assert.ErrorIs(t, c.UpdateSelection([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}), checkin.ErrSessionStopped)

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetEvent, ID: "e"}}))
	res, _ := camera.Deliver("p")
	assert.Equal(t, checkin.CodeNoEligibleTargets, res.Code)
	require.Eventually(t, rearmed(c), time.Second, 5*time.Millisecond)

	require.NoError(t, c.UpdateSelection([]models.TargetRef{
		{Type: models.TargetWorkshop, ID: "w"},
		{Type: models.TargetWorkshop, ID: "w"},
	}))
	assert.Len(t, c.Snapshot().Selection, 1)

	res, _ = camera.Deliver("p")
	assert.True(t, res.OK)
}

func TestController_RecoversFromPanicDuringScan(t *testing.T) {
	store := workshopFixture()
	store.users["q"] = participant("q")
	store.regs["q"] = []models.Registration{
		{ID: "r2", UserID: "q", TargetType: models.TargetWorkshop, TargetID: "w", PaymentStatus: models.PaymentApproved},
	}
	c, resolver, camera, _ := newTestController(t, store, checkin.SessionConfig{Cooldown: 20 * time.Second, ResultDisplay: time.Millisecond})
	resolver.panicFor = map[string]bool{"p": true}

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))

	res, err := camera.Deliver("p")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, checkin.CodeStoreUnavailable, res.Code)
	assert.Equal(t, 0, store.count("p"))

	require.Eventually(t, rearmed(c), time.Second, 5*time.Millisecond)

	// a failed scan leaves no cooldown behind
	res, err = camera.Deliver("q")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, store.count("q"))
}

func TestController_StopDuringProcessingDropsResult(t *testing.T) {
	store := workshopFixture()
	log := &updateLog{}
	resolver := &countingResolver{inner: checkin.NewResolver(store, nil), block: make(chan struct{})}
	camera := checkin.NewRemoteCamera()
	c := checkin.NewController("t1", "op", resolver, checkin.NewRecorder(store, nil, 0, nil), camera,
		checkin.SessionConfig{Cooldown: time.Second, ResultDisplay: 5 * time.Millisecond}, nil, log.publish)

	require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = camera.Deliver("p")
	}()
	require.Eventually(t, func() bool { return c.State() == checkin.StateProcessing }, time.Second, time.Millisecond)

	require.NoError(t, c.Stop())
	close(resolver.block)
	<-done

	// give a stray rearm timer time to fire
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, checkin.StateStopped, c.State())
	assert.Nil(t, c.Snapshot().Result)
	assert.Equal(t, []checkin.State{checkin.StateReady, checkin.StateProcessing, checkin.StateStopped}, log.states())
}

func TestController_UpdatesArriveInOrder(t *testing.T) {
	for i := 0; i < 25; i++ {
		store := workshopFixture()
		log := &updateLog{}
		camera := checkin.NewRemoteCamera()
		c := checkin.NewController("t1", "op", checkin.NewResolver(store, nil), checkin.NewRecorder(store, nil, 0, nil), camera,
			checkin.SessionConfig{}, nil, log.publish)

		require.NoError(t, c.Start([]models.TargetRef{{Type: models.TargetWorkshop, ID: "w"}}))
		_, err := camera.Deliver("p")
		require.NoError(t, err)
		require.Eventually(t, func() bool { return len(log.snapshot()) == 4 }, time.Second, time.Millisecond)

		assert.Equal(t, []checkin.State{checkin.StateReady, checkin.StateProcessing, checkin.StateResultDisplay, checkin.StateReady}, log.states())
		for n, u := range log.snapshot() {
			assert.Equal(t, uint64(n+1), u.Seq)
		}
		require.NoError(t, c.Stop())
	}
}
