package dispatcher

import (
	"context"

	"github.com/garyjia/doc-approval/internal/domain/event"
)

// Handler reacts to a committed domain event. Its error is logged and
// counted; it never reaches the caller that published the event.
type Handler func(ctx context.Context, evt *event.Event) error

// subscription binds one named handler to the event types it receives
type subscription struct {
	name    string
	handler Handler
}
