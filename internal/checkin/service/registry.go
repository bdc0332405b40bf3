package checkin

import (
	"fmt"
	"sort"
	"sync"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"

	"github.com/google/uuid"
)

// Terminal pairs a session controller with the camera feeding it.
type Terminal struct {
	Controller *Controller
	Camera     *RemoteCamera
}

// Registry owns the scan sessions opened on this instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Terminal

	resolver EligibilityResolver
	recorder AttendanceRecorder
	cfg      SessionConfig
	updates  *sse.Broker[Update]
	logger   *logger.Logger
}

func NewRegistry(resolver EligibilityResolver, recorder AttendanceRecorder, cfg SessionConfig, updates *sse.Broker[Update], log *logger.Logger) *Registry {
	if updates == nil {
		updates = sse.NewBroker[Update](10)
	}
	return &Registry{
		sessions: make(map[string]*Terminal),
		resolver: resolver,
		recorder: recorder,
		cfg:      cfg,
		updates:  updates,
		logger:   log,
	}
}

// Updates is the broker terminal streams subscribe to, keyed by session id.
func (r *Registry) Updates() *sse.Broker[Update] {
	return r.updates
}

// Start opens a new terminal session scanning for selection.
func (r *Registry) Start(operatorID string, selection []models.TargetRef) (*Terminal, error) {
	id := uuid.New().String()
	camera := NewRemoteCamera()
	controller := NewController(id, operatorID, r.resolver, r.recorder, camera, r.cfg, r.logger, func(u Update) {
		r.updates.Publish(id, u)
	})

	if err := controller.Start(selection); err != nil {
		return nil, err
	}

	terminal := &Terminal{Controller: controller, Camera: camera}

	r.mu.Lock()
	r.sessions[id] = terminal
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveTerminals.Set(float64(count))
	r.logger.Info("REGISTRY", fmt.Sprintf("Terminal %s opened by %s (%d active)", id, operatorID, count))
	return terminal, nil
}

func (r *Registry) Get(id string) (*Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	terminal, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return terminal, nil
}

// List returns snapshots of every open session ordered by id.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, terminal := range r.sessions {
		out = append(out, terminal.Controller.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Stop closes the session and disconnects its stream subscribers.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	terminal, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	err := terminal.Controller.Stop()
	r.updates.CloseKey(id)
	metrics.ActiveTerminals.Set(float64(count))
	r.logger.Info("REGISTRY", fmt.Sprintf("Terminal %s closed (%d active)", id, count))
	return err
}

// StopAll closes every session, used on shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Stop(id); err != nil {
			r.logger.Warn("REGISTRY", fmt.Sprintf("Failed to stop terminal %s: %v", id, err))
		}
	}
}
