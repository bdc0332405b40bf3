package checkin_test

import (
	"context"
	"errors"
	"sync"

	"ms-checkin/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the EntitlementStore interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindParticipant(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) ListApprovedRegistrations(ctx context.Context, userID string) ([]models.Registration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

func (m *MockStore) ListComboMembership(ctx context.Context, comboIDs []string) ([]models.ComboItem, error) {
	args := m.Called(ctx, comboIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ComboItem), args.Error(1)
}

func (m *MockStore) GetTargets(ctx context.Context, targetType models.TargetType, ids []string) ([]models.Target, error) {
	args := m.Called(ctx, targetType, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Target), args.Error(1)
}

func (m *MockStore) FindAttendance(ctx context.Context, userID string, targetType models.TargetType, targetID string) (*models.Attendance, error) {
	args := m.Called(ctx, userID, targetType, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attendance), args.Error(1)
}

func (m *MockStore) InsertAttendance(ctx context.Context, rec models.Attendance) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) FindLatestAttendance(ctx context.Context, userID string) (*models.Attendance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attendance), args.Error(1)
}

func (m *MockStore) EnforcesUniqueAttendance() bool {
	return m.Called().Bool(0)
}

// memoryStore keeps attendance in a map. With unique set it rejects duplicate
// tuples the way the database constraint does; without it, inserts always
// succeed.
type memoryStore struct {
	mu        sync.Mutex
	unique    bool
	failFor   map[string]bool
	records   []models.Attendance
	users     map[string]*models.User
	regs      map[string][]models.Registration
	combos    map[string][]models.ComboItem
	targets   map[string]models.Target
	findCalls int
}

var errStoreDown = errors.New("connection refused")

func newMemoryStore(unique bool) *memoryStore {
	return &memoryStore{
		unique:  unique,
		failFor: make(map[string]bool),
		users:   make(map[string]*models.User),
		regs:    make(map[string][]models.Registration),
		combos:  make(map[string][]models.ComboItem),
		targets: make(map[string]models.Target),
	}
}

func (s *memoryStore) addTarget(t models.Target) {
	s.targets[t.Ref().Key()] = t
}

func (s *memoryStore) FindParticipant(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *memoryStore) ListApprovedRegistrations(_ context.Context, userID string) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[userID], nil
}

func (s *memoryStore) ListComboMembership(_ context.Context, comboIDs []string) ([]models.ComboItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ComboItem
	for _, id := range comboIDs {
		out = append(out, s.combos[id]...)
	}
	return out, nil
}

func (s *memoryStore) GetTargets(_ context.Context, targetType models.TargetType, ids []string) ([]models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Target
	for _, id := range ids {
		if t, ok := s.targets[models.TargetRef{Type: targetType, ID: id}.Key()]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryStore) FindAttendance(_ context.Context, userID string, targetType models.TargetType, targetID string) (*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	for _, rec := range s.records {
		if rec.UserID == userID && rec.TargetType == targetType && rec.TargetID == targetID {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertAttendance(_ context.Context, rec models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[rec.Ref().Key()] {
		return errStoreDown
	}
	if s.unique {
		for _, existing := range s.records {
			if existing.UserID == rec.UserID && existing.TargetType == rec.TargetType && existing.TargetID == rec.TargetID {
				return models.ErrDuplicateAttendance
			}
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) FindLatestAttendance(_ context.Context, userID string) (*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Attendance
	for i := range s.records {
		if s.records[i].UserID != userID {
			continue
		}
		if latest == nil || s.records[i].MarkedAt.After(latest.MarkedAt) {
			r := s.records[i]
			latest = &r
		}
	}
	return latest, nil
}

func (s *memoryStore) EnforcesUniqueAttendance() bool {
	return s.unique
}

func (s *memoryStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.UserID == userID {
			n++
		}
	}
	return n
}

// recordingNotifier captures published changes.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []models.AttendanceChange
	err     error
}

func (n *recordingNotifier) NotifyAttendance(_ context.Context, change models.AttendanceChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *recordingNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}
