package checkin

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
)

type State string

const (
	StateIdle          State = "idle"
	StateReady         State = "ready"
	StateProcessing    State = "processing"
	StateResultDisplay State = "result_display"
	StateStopped       State = "stopped"
)

// ScanResult is what the operator sees for one decode.
type ScanResult struct {
	OK               bool              `json:"ok"`
	Ignored          bool              `json:"ignored,omitempty"`
	Code             Code              `json:"code,omitempty"`
	Message          string            `json:"message"`
	ParticipantID    string            `json:"participant_id,omitempty"`
	ParticipantName  string            `json:"participant_name,omitempty"`
	Targets          []EligibleTarget  `json:"targets,omitempty"`
	Outcome          *RecordingOutcome `json:"outcome,omitempty"`
	RemainingSeconds int               `json:"remaining_seconds,omitempty"`
	At               time.Time         `json:"at"`
}

// Update is published on the terminal stream for every state change. Seq
// increases by one per update of a session, in publication order.
type Update struct {
	SessionID string      `json:"session_id"`
	Seq       uint64      `json:"seq"`
	State     State       `json:"state"`
	Result    *ScanResult `json:"result,omitempty"`
	At        time.Time   `json:"at"`
}

// Snapshot is the current view of a terminal.
type Snapshot struct {
	SessionID         string             `json:"session_id"`
	OperatorID        string             `json:"operator_id"`
	State             State              `json:"state"`
	Selection         []models.TargetRef `json:"selection"`
	Result            *ScanResult        `json:"result,omitempty"`
	CooldownRemaining int                `json:"cooldown_remaining_seconds"`
}

type EligibilityResolver interface {
	Resolve(ctx context.Context, participantID string, selected []models.TargetRef) (*Resolution, error)
}

type AttendanceRecorder interface {
	RecordAll(ctx context.Context, participant *models.User, targets []EligibleTarget, by Marker) RecordingOutcome
}

type SessionConfig struct {
	// Cooldown is the minimum time between a successful recording and the
	// next accepted decode on the same terminal.
	Cooldown      time.Duration
	ResultDisplay time.Duration
}

// Controller is the state machine of one scan terminal.
type Controller struct {
	ID         string
	OperatorID string

	resolver EligibilityResolver
	recorder AttendanceRecorder
	camera   Camera
	cfg      SessionConfig
	logger   *logger.Logger
	publish  func(Update)
	now      func() time.Time

	mu          sync.Mutex
	emitMu      sync.Mutex
	seq         uint64
	state       State
	selection   []models.TargetRef
	result      *ScanResult
	lastSuccess time.Time
	timer       *time.Timer
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewController(id, operatorID string, resolver EligibilityResolver, recorder AttendanceRecorder, camera Camera, cfg SessionConfig, log *logger.Logger, publish func(Update)) *Controller {
	if publish == nil {
		publish = func(Update) {}
	}
	return &Controller{
		ID:         id,
		OperatorID: operatorID,
		resolver:   resolver,
		recorder:   recorder,
		camera:     camera,
		cfg:        cfg,
		logger:     log,
		publish:    publish,
		now:        time.Now,
		state:      StateIdle,
	}
}

// SetClock replaces the time source used for cooldown bookkeeping.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// ValidateSelection normalises an operator selection: it must be non-empty
// and hold only events and workshops. Duplicates are dropped.
func ValidateSelection(selection []models.TargetRef) ([]models.TargetRef, error) {
	if len(selection) == 0 {
		return nil, ErrNoTargetsSelected
	}
	seen := make(map[string]bool, len(selection))
	out := make([]models.TargetRef, 0, len(selection))
	for _, ref := range selection {
		ref.ID = strings.TrimSpace(ref.ID)
		if !ref.Type.Attendable() || ref.ID == "" {
			return nil, newError(CodeInvalidTarget, fmt.Sprintf("cannot scan for %q", ref.Key()), nil)
		}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		out = append(out, ref)
	}
	return out, nil
}

// Start arms the camera for the given selection and moves to ready.
func (c *Controller) Start(selection []models.TargetRef) error {
	normalized, err := ValidateSelection(selection)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return newError(CodeSessionStopped, fmt.Sprintf("session is %s", c.state), nil)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	if err := c.camera.Open(c.onDecode, c.onFailure); err != nil {
		c.state = StateStopped
		c.cancel()
		c.unlockAndEmit(StateStopped, nil)
		c.logger.Error("SCAN", fmt.Sprintf("[%s] Camera failed to open: %v", c.ID, err))
		return newError(CodeCameraUnavailable, "camera failed to open", err)
	}

	c.selection = normalized
	c.state = StateReady
	c.unlockAndEmit(StateReady, nil)

	c.logger.LogScan(c.ID, fmt.Sprintf("Session started by %s for %d target(s)", c.OperatorID, len(normalized)))
	return nil
}

// UpdateSelection replaces the targets the terminal scans for. A scan in
// progress keeps the selection it started with.
func (c *Controller) UpdateSelection(selection []models.TargetRef) error {
	normalized, err := ValidateSelection(selection)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopped {
		c.mu.Unlock()
		return ErrSessionStopped
	}
	c.selection = normalized
	c.unlockAndEmit(c.state, nil)
	return nil
}

func (c *Controller) onDecode(payload string) ScanResult {
	return c.HandleDecode(payload)
}

func (c *Controller) onFailure(err error) {
	c.logger.Debug("SCAN", fmt.Sprintf("[%s] Unreadable frame: %v", c.ID, err))
}

// HandleDecode runs one decoded payload through resolve and record. Decodes
// that arrive while the terminal is not ready are ignored; decodes inside
// the cooldown are rejected without touching the store.
func (c *Controller) HandleDecode(payload string) ScanResult {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		metrics.ScansTotal.WithLabelValues("ignored").Inc()
		return ScanResult{Ignored: true, Message: ignoredMessage(state), At: c.now()}
	}

	if remaining := c.cooldownRemaining(); remaining > 0 {
		secs := int(math.Ceil(remaining.Seconds()))
		res := ScanResult{
			Code:             CodeCooldownActive,
			Message:          fmt.Sprintf("Please wait %d second(s) before the next scan", secs),
			RemainingSeconds: secs,
			At:               c.now(),
		}
		c.unlockAndEmit(StateReady, &res)
		metrics.ScansTotal.WithLabelValues(string(CodeCooldownActive)).Inc()
		return res
	}

	c.state = StateProcessing
	selection := append([]models.TargetRef(nil), c.selection...)
	ctx := c.ctx
	c.unlockAndEmit(StateProcessing, nil)

	res, succeeded := c.process(ctx, payload, selection)
	res.At = c.now()

	c.mu.Lock()
	if c.state != StateProcessing {
		// stopped while the store was working
		c.mu.Unlock()
		return res
	}
	if succeeded {
		c.lastSuccess = c.now()
	}
	c.state = StateResultDisplay
	c.result = &res
	c.timer = time.AfterFunc(c.cfg.ResultDisplay, c.rearm)
	c.unlockAndEmit(StateResultDisplay, &res)

	outcome := "ok"
	if !res.OK {
		outcome = string(res.Code)
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()
	c.logger.LogScan(c.ID, res.Message)
	return res
}

func (c *Controller) process(ctx context.Context, payload string, selection []models.TargetRef) (res ScanResult, succeeded bool) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("SCAN", fmt.Sprintf("[%s] Recovered from panic during scan: %v", c.ID, p))
			res = failureResult(newError(CodeStoreUnavailable, "unexpected scan failure", fmt.Errorf("panic: %v", p)))
			succeeded = false
		}
	}()

	ref, err := ParseScanPayload(payload)
	if err != nil {
		return failureResult(err), false
	}

	resolution, err := c.resolver.Resolve(ctx, ref.ID, selection)
	if err != nil {
		res := failureResult(err)
		res.ParticipantID = ref.ID
		return res, false
	}

	res = ScanResult{
		ParticipantID:   resolution.Participant.ID,
		ParticipantName: resolution.Participant.FullName,
		Targets:         resolution.Targets,
	}
	if len(resolution.Targets) == 0 {
		res.Code = CodeNoEligibleTargets
		res.Message = fmt.Sprintf("%s is not registered for the selected targets", resolution.Participant.FullName)
		return res, false
	}

	outcome := c.recorder.RecordAll(ctx, resolution.Participant, resolution.Targets, Marker{OperatorID: c.OperatorID, SessionID: c.ID})
	res.Outcome = &outcome
	res.Message = summarize(outcome)
	if err := outcome.Err(); err != nil {
		res.Code = CodeOf(err)
		res.OK = res.Code == CodePartialRecordingFailure
		return res, false
	}
	res.OK = true
	return res, outcome.Succeeded()
}

func (c *Controller) rearm() {
	c.mu.Lock()
	if c.state != StateResultDisplay {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.result = nil
	c.timer = nil
	c.unlockAndEmit(StateReady, nil)
}

// Stop releases the camera and clears the session. Safe to call repeatedly.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	armed := c.state != StateIdle
	c.state = StateStopped
	c.selection = nil
	c.result = nil
	c.lastSuccess = time.Time{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.unlockAndEmit(StateStopped, nil)

	var err error
	if armed {
		err = c.camera.Close()
	}
	c.logger.LogScan(c.ID, "Session stopped")
	return err
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:  c.ID,
		OperatorID: c.OperatorID,
		State:      c.state,
		Selection:  append([]models.TargetRef(nil), c.selection...),
	}
	if c.result != nil {
		res := *c.result
		snap.Result = &res
	}
	if remaining := c.cooldownRemaining(); remaining > 0 {
		snap.CooldownRemaining = int(math.Ceil(remaining.Seconds()))
	}
	return snap
}

// cooldownRemaining must be called with c.mu held.
func (c *Controller) cooldownRemaining() time.Duration {
	if c.lastSuccess.IsZero() || c.cfg.Cooldown <= 0 {
		return 0
	}
	elapsed := c.now().Sub(c.lastSuccess)
	if elapsed >= c.cfg.Cooldown {
		return 0
	}
	return c.cfg.Cooldown - elapsed
}

// unlockAndEmit numbers the update, releases c.mu and publishes it. emitMu
// is taken before c.mu is released so updates go out in Seq order.
func (c *Controller) unlockAndEmit(state State, res *ScanResult) {
	c.seq++
	u := Update{SessionID: c.ID, Seq: c.seq, State: state, Result: res, At: time.Now()}
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	c.publish(u)
}

func failureResult(err error) ScanResult {
	res := ScanResult{Code: CodeOf(err)}
	if e, ok := err.(*Error); ok {
		res.Message = e.Message
	} else {
		res.Message = "Scan failed, please try again"
	}
	return res
}

func summarize(o RecordingOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: recorded for %d target(s), %d already attended", o.ParticipantName, o.Recorded, o.AlreadyRecorded)
	if len(o.Errors) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(o.Errors))
	}
	return b.String()
}

func ignoredMessage(state State) string {
	switch state {
	case StateProcessing:
		return "A scan is already being processed"
	case StateResultDisplay:
		return "Showing the previous result"
	default:
		return "Terminal is not scanning"
	}
}
