package alerting

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/threshold"
)

// Repository persists alert instances. The engine is storage-agnostic; the
// Postgres implementation lives in internal/database.
type Repository interface {
	InsertAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	UpdateAlertActivity(ctx context.Context, alertID, message string, value float64, at time.Time) error
	SetAlertStatus(ctx context.Context, alertID, status, actor, notes string, at time.Time) error
	MarkAlertEscalated(ctx context.Context, alertID string, at time.Time) error
	ListOpenAlertsBefore(ctx context.Context, cutoff time.Time) ([]*Alert, error)
}

// Publisher dispatches alert notifications to the outbound channel.
type Publisher interface {
	PublishAlert(ctx context.Context, notification *protocol.AlertNotification) error
}

// EscalationPolicy is invoked for each stale Open alert. The default policy
// only marks and notifies; richer behavior (paging chains, reassignment)
// plugs in here.
type EscalationPolicy interface {
	Escalate(ctx context.Context, alert *Alert) error
}

// ActionType describes what Evaluate did.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionCreated ActionType = "created"
	ActionUpdated ActionType = "updated"
)

// AlertAction is the outcome of one threshold evaluation.
type AlertAction struct {
	Type    ActionType
	AlertID string
}

// Manager deduplicates, creates, updates, escalates and dispatches alerts.
type Manager struct {
	repo       Repository
	states     StateStore
	publisher  Publisher
	escalation EscalationPolicy

	retries int
	backoff time.Duration
}

// NewManager creates an alert manager. publisher may be nil (no outbound
// dispatch); escalation may be nil to use the default mark-and-notify policy.
func NewManager(repo Repository, states StateStore, publisher Publisher, retries int, backoff time.Duration) *Manager {
	return &Manager{
		repo:      repo,
		states:    states,
		publisher: publisher,
		retries:   retries,
		backoff:   backoff,
	}
}

// SetEscalationPolicy overrides the default escalation behavior.
func (m *Manager) SetEscalationPolicy(policy EscalationPolicy) {
	m.escalation = policy
}

// EvalInput carries the reading context an evaluation needs.
type EvalInput struct {
	ParameterID string
	StationID   string
	SensorID    string
	State       threshold.ControlState
	Value       float64
	Message     string
	At          time.Time
}

// Evaluate applies the dedup rule for one threshold evaluation. A Normal
// state takes no action. Otherwise the Open alert for the dedup key is
// updated in place, or a new one is opened with severity mapped from the
// state. A non-nil error is always a *DispatchError: the returned action has
// still been decided and the caller must not roll anything back.
func (m *Manager) Evaluate(ctx context.Context, in EvalInput) (AlertAction, error) {
	if in.State == threshold.StateNormal {
		return AlertAction{Type: ActionNone}, nil
	}

	alertType := string(in.State)
	key := DedupKey(in.StationID, in.SensorID, alertType)

	open, err := m.states.Get(ctx, key)
	if err != nil {
		return AlertAction{Type: ActionNone}, &DispatchError{Op: "state lookup", Err: err}
	}

	if open != nil {
		return m.updateOpen(ctx, open, in)
	}

	alert := &Alert{
		ID:          uuid.New().String(),
		AlertType:   alertType,
		Severity:    SeverityFor(alertType),
		Status:      StatusOpen,
		StationID:   in.StationID,
		SensorID:    in.SensorID,
		ParameterID: in.ParameterID,
		Message:     in.Message,
		Value:       in.Value,
		OpenedAt:    in.At,
		LastUpdated: in.At,
	}

	// Claim the dedup key atomically before inserting so concurrent breaches
	// of the same condition cannot both open an alert.
	claimed, err := m.states.SetIfAbsent(ctx, key, &OpenState{AlertID: alert.ID, OpenedAt: in.At})
	if err != nil {
		return AlertAction{Type: ActionNone}, &DispatchError{Op: "state claim", Err: err}
	}
	if !claimed {
		// Lost the race to another evaluation; fold into its instance.
		open, err = m.states.Get(ctx, key)
		if err != nil {
			return AlertAction{Type: ActionNone}, &DispatchError{Op: "state lookup", Err: err}
		}
		if open == nil {
			return AlertAction{Type: ActionNone}, &DispatchError{Op: "state claim", Err: fmt.Errorf("dedup key %s contested", key)}
		}
		return m.updateOpen(ctx, open, in)
	}

	action := AlertAction{Type: ActionCreated, AlertID: alert.ID}

	if err := m.repo.InsertAlert(ctx, alert); err != nil {
		return action, &DispatchError{Op: "insert", Err: err}
	}

	m.publishBestEffort(ctx, alertNotification(alert, protocol.AlertEventTriggered, ""))
	return action, nil
}

func (m *Manager) updateOpen(ctx context.Context, open *OpenState, in EvalInput) (AlertAction, error) {
	if err := m.repo.UpdateAlertActivity(ctx, open.AlertID, in.Message, in.Value, in.At); err != nil {
		return AlertAction{Type: ActionUpdated, AlertID: open.AlertID}, &DispatchError{Op: "update", Err: err}
	}
	return AlertAction{Type: ActionUpdated, AlertID: open.AlertID}, nil
}

// Acknowledge moves an Open alert to Acknowledged. The dedup state is
// cleared: an acknowledged condition that breaches again opens a fresh alert.
func (m *Manager) Acknowledge(ctx context.Context, alertID, actor string) error {
	alert, err := m.repo.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return ErrAlertNotFound
	}
	if alert.Status != StatusOpen {
		return ErrInvalidTransition
	}

	now := time.Now()
	if err := m.repo.SetAlertStatus(ctx, alertID, StatusAcknowledged, actor, "", now); err != nil {
		return err
	}
	m.clearState(ctx, alert)
	return nil
}

// Resolve moves any non-Resolved alert to Resolved. Resolved is terminal; a
// later breach of the same condition opens a new alert instance.
func (m *Manager) Resolve(ctx context.Context, alertID, actor, notes string) error {
	alert, err := m.repo.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return ErrAlertNotFound
	}
	if alert.Status == StatusResolved {
		return ErrInvalidTransition
	}

	now := time.Now()
	if err := m.repo.SetAlertStatus(ctx, alertID, StatusResolved, actor, notes, now); err != nil {
		return err
	}
	m.clearState(ctx, alert)

	alert.Status = StatusResolved
	m.publishBestEffort(ctx, alertNotification(alert, protocol.AlertEventResolved, actor))
	return nil
}

// EscalateStale finds Open alerts older than maxAge that have not yet been
// escalated, marks them and runs the escalation policy. Returns the number
// escalated. Individual failures are logged and skipped.
func (m *Manager) EscalateStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	stale, err := m.repo.ListOpenAlertsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, alert := range stale {
		if alert.Escalated {
			continue
		}
		if err := m.repo.MarkAlertEscalated(ctx, alert.ID, time.Now()); err != nil {
			log.Printf("Failed to mark alert %s escalated: %v", alert.ID, err)
			continue
		}
		alert.Escalated = true
		escalated++

		if m.escalation != nil {
			if err := m.escalation.Escalate(ctx, alert); err != nil {
				log.Printf("Escalation policy failed for alert %s: %v", alert.ID, err)
			}
			continue
		}
		m.publishBestEffort(ctx, alertNotification(alert, protocol.AlertEventEscalated, ""))
	}
	return escalated, nil
}

func (m *Manager) clearState(ctx context.Context, alert *Alert) {
	key := DedupKey(alert.StationID, alert.SensorID, alert.AlertType)
	if err := m.states.Delete(ctx, key); err != nil {
		log.Printf("Failed to clear alert state for %s: %v", key, err)
	}
}

// publishBestEffort dispatches a notification with bounded retry. Failures
// are logged, never propagated: a slow or dead notification channel must not
// fail ingestion.
func (m *Manager) publishBestEffort(ctx context.Context, notification *protocol.AlertNotification) {
	if m.publisher == nil {
		return
	}

	var err error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				log.Printf("Alert notification dispatch canceled: %v", ctx.Err())
				return
			case <-time.After(m.backoff * time.Duration(attempt)):
			}
		}
		if err = m.publisher.PublishAlert(ctx, notification); err == nil {
			return
		}
	}
	log.Printf("Failed to publish alert notification %s after %d attempts: %v",
		notification.AlertID, m.retries+1, err)
}

func alertNotification(alert *Alert, eventType, actor string) *protocol.AlertNotification {
	return &protocol.AlertNotification{
		EventType:   eventType,
		AlertID:     alert.ID,
		AlertType:   alert.AlertType,
		Severity:    alert.Severity,
		StationID:   alert.StationID,
		SensorID:    alert.SensorID,
		ParameterID: alert.ParameterID,
		Message:     alert.Message,
		Value:       alert.Value,
		OpenedAt:    alert.OpenedAt,
		OccurredAt:  time.Now(),
		Actor:       actor,
	}
}
