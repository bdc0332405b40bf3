package display_api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ms-checkin/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu     sync.Mutex
	latest *models.Attendance
}

func (s *stubStore) FindLatestAttendance(ctx context.Context, userID string) (*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

func TestStreamDisplayConfirms(t *testing.T) {
	store := &stubStore{latest: &models.Attendance{UserID: "p", MarkedAt: time.Now()}}
	h := &Handler{Store: store, PollInterval: time.Hour, ConfirmDelay: 5 * time.Millisecond}

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/display/p/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}

	require.NotEmpty(t, data)
	assert.Contains(t, data[0], `"phase":"waiting"`)
	assert.Contains(t, data[len(data)-1], `"phase":"confirmed"`)
}
