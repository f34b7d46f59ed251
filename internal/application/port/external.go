package port

import (
	"context"

	"github.com/garyjia/doc-approval/internal/domain/event"
)

// EventPublisher receives domain events after the owning transaction commits
type EventPublisher interface {
	Publish(ctx context.Context, events ...*event.Event)
}

// MessageSender delivers a plain-text message to an employee
type MessageSender interface {
	SendText(ctx context.Context, employeeID string, text string) error
}

// NopPublisher discards events
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, ...*event.Event) {}
