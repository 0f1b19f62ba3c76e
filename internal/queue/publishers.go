package queue

import (
	"context"
	"fmt"

	"github.com/ambworks/spc-server/internal/protocol"
)

// ReadingPublisher publishes validated reading events keyed by parameter ID
// so that all readings for one parameter land on the same partition.
type ReadingPublisher struct {
	producer *Producer
}

// NewReadingPublisher creates a publisher for the validated readings topic
func NewReadingPublisher(producer *Producer) *ReadingPublisher {
	return &ReadingPublisher{producer: producer}
}

// PublishReading publishes a reading event
func (p *ReadingPublisher) PublishReading(ctx context.Context, event *protocol.ReadingEvent) error {
	data, err := protocol.EncodeReadingEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode reading event: %w", err)
	}
	return p.producer.Publish(ctx, event.ParameterID, data)
}

// Close closes the underlying producer
func (p *ReadingPublisher) Close() error {
	return p.producer.Close()
}

// AlertPublisher publishes alert lifecycle notifications keyed by alert ID
type AlertPublisher struct {
	producer *Producer
}

// NewAlertPublisher creates a publisher for the alerts topic
func NewAlertPublisher(producer *Producer) *AlertPublisher {
	return &AlertPublisher{producer: producer}
}

// PublishAlert publishes an alert notification
func (p *AlertPublisher) PublishAlert(ctx context.Context, notification *protocol.AlertNotification) error {
	data, err := protocol.EncodeAlertNotification(notification)
	if err != nil {
		return fmt.Errorf("failed to encode alert notification: %w", err)
	}
	return p.producer.Publish(ctx, notification.AlertID, data)
}

// Close closes the underlying producer
func (p *AlertPublisher) Close() error {
	return p.producer.Close()
}
