package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/threshold"
)

type mockStateStore struct {
	mu     sync.Mutex
	states map[string]*OpenState
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{states: make(map[string]*OpenState)}
}

func (m *mockStateStore) Get(ctx context.Context, dedupKey string) (*OpenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[dedupKey], nil
}

func (m *mockStateStore) SetIfAbsent(ctx context.Context, dedupKey string, state *OpenState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[dedupKey]; ok {
		return false, nil
	}
	m.states[dedupKey] = state
	return true, nil
}

func (m *mockStateStore) Delete(ctx context.Context, dedupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, dedupKey)
	return nil
}

type mockAlertRepo struct {
	mu      sync.Mutex
	alerts  map[string]*Alert
	updates int
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{alerts: make(map[string]*Alert)}
}

func (m *mockAlertRepo) InsertAlert(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *alert
	m.alerts[alert.ID] = &copied
	return nil
}

func (m *mockAlertRepo) GetAlert(ctx context.Context, alertID string) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *mockAlertRepo) UpdateAlertActivity(ctx context.Context, alertID, message string, value float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[alertID]; ok {
		a.Message = message
		a.Value = value
		a.LastUpdated = at
		m.updates++
	}
	return nil
}

func (m *mockAlertRepo) SetAlertStatus(ctx context.Context, alertID, status, actor, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[alertID]; ok {
		a.Status = status
		a.LastUpdated = at
		switch status {
		case StatusAcknowledged:
			a.AcknowledgedBy = actor
		case StatusResolved:
			a.ResolvedBy = actor
			a.ResolutionNotes = notes
		}
	}
	return nil
}

func (m *mockAlertRepo) MarkAlertEscalated(ctx context.Context, alertID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[alertID]; ok {
		a.Escalated = true
		a.LastUpdated = at
	}
	return nil
}

func (m *mockAlertRepo) ListOpenAlertsBefore(ctx context.Context, cutoff time.Time) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.Status == StatusOpen && !a.OpenedAt.After(cutoff) {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.Status == StatusOpen {
			n++
		}
	}
	return n
}

type mockPublisher struct {
	mu            sync.Mutex
	notifications []*protocol.AlertNotification
	failures      int
}

func (m *mockPublisher) PublishAlert(ctx context.Context, n *protocol.AlertNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return &DispatchError{Op: "publish", Err: context.DeadlineExceeded}
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockPublisher) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.notifications {
		out = append(out, n.EventType)
	}
	return out
}

func testManager() (*Manager, *mockAlertRepo, *mockStateStore, *mockPublisher) {
	repo := newMockAlertRepo()
	states := newMockStateStore()
	pub := &mockPublisher{}
	return NewManager(repo, states, pub, 2, time.Millisecond), repo, states, pub
}

func alarmInput(at time.Time) EvalInput {
	return EvalInput{
		ParameterID: "PARAM-1",
		StationID:   "STATION-01",
		SensorID:    "SENSOR-1",
		State:       threshold.StateAlarm,
		Value:       101.5,
		Message:     "value 101.5 breached upper alarm 100",
		At:          at,
	}
}

func TestManager_EvaluateNormalNoAction(t *testing.T) {
	m, repo, _, pub := testManager()

	in := alarmInput(time.Now())
	in.State = threshold.StateNormal

	action, err := m.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if action.Type != ActionNone {
		t.Errorf("Expected no action, got %s", action.Type)
	}
	if repo.openCount() != 0 {
		t.Errorf("Expected no alerts, got %d", repo.openCount())
	}
	if len(pub.events()) != 0 {
		t.Errorf("Expected no notifications, got %v", pub.events())
	}
}

func TestManager_EvaluateDedup(t *testing.T) {
	m, repo, _, pub := testManager()
	ctx := context.Background()

	// First breach opens an alert
	first, err := m.Evaluate(ctx, alarmInput(time.Now()))
	if err != nil {
		t.Fatalf("First evaluate failed: %v", err)
	}
	if first.Type != ActionCreated {
		t.Fatalf("Expected created, got %s", first.Type)
	}

	// Second breach of the same condition updates, not creates
	in := alarmInput(time.Now())
	in.Value = 103.2
	second, err := m.Evaluate(ctx, in)
	if err != nil {
		t.Fatalf("Second evaluate failed: %v", err)
	}
	if second.Type != ActionUpdated {
		t.Errorf("Expected updated, got %s", second.Type)
	}
	if second.AlertID != first.AlertID {
		t.Errorf("Expected same alert ID, got %s and %s", first.AlertID, second.AlertID)
	}
	if repo.openCount() != 1 {
		t.Errorf("Expected exactly one open alert, got %d", repo.openCount())
	}

	alert, _ := repo.GetAlert(ctx, first.AlertID)
	if alert.Value != 103.2 {
		t.Errorf("Expected updated value 103.2, got %v", alert.Value)
	}

	// Only the creation was notified
	evs := pub.events()
	if len(evs) != 1 || evs[0] != protocol.AlertEventTriggered {
		t.Errorf("Expected one TRIGGERED notification, got %v", evs)
	}
}

func TestManager_EvaluateConcurrentBreachesSingleAlert(t *testing.T) {
	m, repo, _, pub := testManager()
	ctx := context.Background()

	// Simultaneous breaches of one condition from different connections must
	// collapse onto a single alert instance.
	const breaches = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < breaches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			action, err := m.Evaluate(ctx, alarmInput(time.Now()))
			if err != nil {
				t.Errorf("Evaluate failed: %v", err)
				return
			}
			if action.Type == ActionCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("Expected exactly one created action, got %d", created)
	}
	if repo.openCount() != 1 {
		t.Errorf("Expected exactly one open alert, got %d", repo.openCount())
	}
	evs := pub.events()
	if len(evs) != 1 || evs[0] != protocol.AlertEventTriggered {
		t.Errorf("Expected one TRIGGERED notification, got %v", evs)
	}
}

func TestManager_EvaluateDistinctKeys(t *testing.T) {
	m, repo, _, _ := testManager()
	ctx := context.Background()

	// Same station and sensor but different alert types are separate conditions
	alarm := alarmInput(time.Now())
	warning := alarmInput(time.Now())
	warning.State = threshold.StateWarning

	a1, _ := m.Evaluate(ctx, alarm)
	a2, _ := m.Evaluate(ctx, warning)

	if a1.Type != ActionCreated || a2.Type != ActionCreated {
		t.Fatalf("Expected two created actions, got %s and %s", a1.Type, a2.Type)
	}
	if repo.openCount() != 2 {
		t.Errorf("Expected two open alerts, got %d", repo.openCount())
	}

	alarmAlert, _ := repo.GetAlert(ctx, a1.AlertID)
	warnAlert, _ := repo.GetAlert(ctx, a2.AlertID)
	if alarmAlert.Severity != SeverityHigh {
		t.Errorf("Expected High severity for alarm, got %s", alarmAlert.Severity)
	}
	if warnAlert.Severity != SeverityMedium {
		t.Errorf("Expected Medium severity for warning, got %s", warnAlert.Severity)
	}
}

func TestManager_ResolveThenRebreach(t *testing.T) {
	m, repo, _, pub := testManager()
	ctx := context.Background()

	first, _ := m.Evaluate(ctx, alarmInput(time.Now()))

	if err := m.Resolve(ctx, first.AlertID, "operator-7", "tool changed"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	alert, _ := repo.GetAlert(ctx, first.AlertID)
	if alert.Status != StatusResolved {
		t.Errorf("Expected Resolved, got %s", alert.Status)
	}
	if alert.ResolvedBy != "operator-7" {
		t.Errorf("Expected resolver operator-7, got %s", alert.ResolvedBy)
	}

	// A new breach of the same condition opens a fresh alert instance
	second, err := m.Evaluate(ctx, alarmInput(time.Now()))
	if err != nil {
		t.Fatalf("Re-breach evaluate failed: %v", err)
	}
	if second.Type != ActionCreated {
		t.Errorf("Expected a new alert after resolve, got %s", second.Type)
	}
	if second.AlertID == first.AlertID {
		t.Error("Expected a different alert ID after resolve")
	}

	evs := pub.events()
	want := []string{protocol.AlertEventTriggered, protocol.AlertEventResolved, protocol.AlertEventTriggered}
	if len(evs) != len(want) {
		t.Fatalf("Expected %d notifications, got %v", len(want), evs)
	}
	for i := range want {
		if evs[i] != want[i] {
			t.Errorf("Notification %d: expected %s, got %s", i, want[i], evs[i])
		}
	}
}

func TestManager_ResolveTerminal(t *testing.T) {
	m, _, _, _ := testManager()
	ctx := context.Background()

	action, _ := m.Evaluate(ctx, alarmInput(time.Now()))

	if err := m.Resolve(ctx, action.AlertID, "operator-7", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := m.Resolve(ctx, action.AlertID, "operator-8", ""); err != ErrInvalidTransition {
		t.Errorf("Expected ErrInvalidTransition on double resolve, got %v", err)
	}
	if err := m.Acknowledge(ctx, action.AlertID, "operator-8"); err != ErrInvalidTransition {
		t.Errorf("Expected ErrInvalidTransition acknowledging resolved alert, got %v", err)
	}
}

func TestManager_AcknowledgeClearsDedup(t *testing.T) {
	m, repo, states, _ := testManager()
	ctx := context.Background()

	first, _ := m.Evaluate(ctx, alarmInput(time.Now()))

	if err := m.Acknowledge(ctx, first.AlertID, "operator-7"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	alert, _ := repo.GetAlert(ctx, first.AlertID)
	if alert.Status != StatusAcknowledged {
		t.Errorf("Expected Acknowledged, got %s", alert.Status)
	}
	if alert.AcknowledgedBy != "operator-7" {
		t.Errorf("Expected acknowledger operator-7, got %s", alert.AcknowledgedBy)
	}

	key := DedupKey("STATION-01", "SENSOR-1", TypeAlarm)
	if state, _ := states.Get(ctx, key); state != nil {
		t.Error("Expected dedup state cleared after acknowledge")
	}

	// The acknowledged alert no longer suppresses new alerts
	second, _ := m.Evaluate(ctx, alarmInput(time.Now()))
	if second.Type != ActionCreated {
		t.Errorf("Expected new alert after acknowledge, got %s", second.Type)
	}
}

func TestManager_AcknowledgeUnknownAlert(t *testing.T) {
	m, _, _, _ := testManager()

	if err := m.Acknowledge(context.Background(), "no-such-alert", "operator-7"); err != ErrAlertNotFound {
		t.Errorf("Expected ErrAlertNotFound, got %v", err)
	}
}

func TestManager_EscalateStale(t *testing.T) {
	m, repo, _, pub := testManager()
	ctx := context.Background()

	// One stale alert, one fresh
	stale, _ := m.Evaluate(ctx, alarmInput(time.Now().Add(-2*time.Hour)))
	freshIn := alarmInput(time.Now())
	freshIn.SensorID = "SENSOR-2"
	fresh, _ := m.Evaluate(ctx, freshIn)

	escalated, err := m.EscalateStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("EscalateStale failed: %v", err)
	}
	if escalated != 1 {
		t.Fatalf("Expected 1 escalated alert, got %d", escalated)
	}

	staleAlert, _ := repo.GetAlert(ctx, stale.AlertID)
	if !staleAlert.Escalated {
		t.Error("Expected stale alert marked escalated")
	}
	freshAlert, _ := repo.GetAlert(ctx, fresh.AlertID)
	if freshAlert.Escalated {
		t.Error("Fresh alert must not be escalated")
	}

	// A second sweep does not re-escalate
	escalated, _ = m.EscalateStale(ctx, time.Hour)
	if escalated != 0 {
		t.Errorf("Expected no re-escalation, got %d", escalated)
	}

	found := false
	for _, ev := range pub.events() {
		if ev == protocol.AlertEventEscalated {
			found = true
		}
	}
	if !found {
		t.Error("Expected an ESCALATED notification")
	}
}

type countingPolicy struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPolicy) Escalate(ctx context.Context, alert *Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func TestManager_EscalationPolicyOverride(t *testing.T) {
	m, _, _, pub := testManager()
	ctx := context.Background()

	policy := &countingPolicy{}
	m.SetEscalationPolicy(policy)

	m.Evaluate(ctx, alarmInput(time.Now().Add(-2*time.Hour)))

	escalated, err := m.EscalateStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("EscalateStale failed: %v", err)
	}
	if escalated != 1 {
		t.Fatalf("Expected 1 escalated alert, got %d", escalated)
	}
	if policy.calls != 1 {
		t.Errorf("Expected policy called once, got %d", policy.calls)
	}

	// The custom policy replaces the default notification
	for _, ev := range pub.events() {
		if ev == protocol.AlertEventEscalated {
			t.Error("Did not expect an ESCALATED notification with a custom policy")
		}
	}
}

func TestManager_DispatchRetries(t *testing.T) {
	repo := newMockAlertRepo()
	states := newMockStateStore()
	pub := &mockPublisher{failures: 2}
	m := NewManager(repo, states, pub, 3, time.Millisecond)

	action, err := m.Evaluate(context.Background(), alarmInput(time.Now()))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if action.Type != ActionCreated {
		t.Fatalf("Expected created, got %s", action.Type)
	}

	// Two failures then success within the retry limit
	evs := pub.events()
	if len(evs) != 1 || evs[0] != protocol.AlertEventTriggered {
		t.Errorf("Expected one successful notification after retries, got %v", evs)
	}
}

func TestManager_DispatchFailureDoesNotFailEvaluate(t *testing.T) {
	repo := newMockAlertRepo()
	states := newMockStateStore()
	pub := &mockPublisher{failures: 100}
	m := NewManager(repo, states, pub, 1, time.Millisecond)

	action, err := m.Evaluate(context.Background(), alarmInput(time.Now()))
	if err != nil {
		t.Fatalf("Evaluate must not fail on dispatch errors, got %v", err)
	}
	if action.Type != ActionCreated {
		t.Errorf("Expected created, got %s", action.Type)
	}
	if repo.openCount() != 1 {
		t.Errorf("Alert must persist despite dispatch failure, got %d open", repo.openCount())
	}
}
