package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{
			name:      "valid - execution started",
			eventType: TypeExecutionStarted,
			want:      true,
		},
		{
			name:      "valid - step activated",
			eventType: TypeStepActivated,
			want:      true,
		},
		{
			name:      "valid - period locked",
			eventType: TypePeriodLocked,
			want:      true,
		},
		{
			name:      "invalid - unknown type",
			eventType: Type("unknown.type"),
			want:      false,
		},
		{
			name:      "invalid - empty string",
			eventType: Type(""),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_String(t *testing.T) {
	if got := TypeStepDecided.String(); got != "step.decided" {
		t.Errorf("Type.String() = %v, want %v", got, "step.decided")
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"status": "APPROVED",
	}

	event := NewEvent(TypeExecutionApproved, 123, 456, "C1", payload)

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}

	if _, err := uuid.Parse(event.ID); err != nil {
		t.Errorf("Event ID %q is not a UUID: %v", event.ID, err)
	}

	if event.Type != TypeExecutionApproved {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeExecutionApproved)
	}

	if event.AggregateID != 123 || event.DocumentID != 456 {
		t.Errorf("Event ids = (%v, %v), want (123, 456)", event.AggregateID, event.DocumentID)
	}

	if event.CompanyID != "C1" {
		t.Errorf("Event CompanyID = %v, want C1", event.CompanyID)
	}

	if event.Payload["status"] != "APPROVED" {
		t.Errorf("Event Payload[status] = %v, want %v", event.Payload["status"], "APPROVED")
	}

	if event.CorrelationID == "" || event.CorrelationID == event.ID {
		t.Error("Event CorrelationID should be set independently of ID")
	}

	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	event := NewEvent(TypePeriodClosed, 1, 0, "C1", nil)

	if event.Payload == nil {
		t.Fatal("Event Payload should not be nil")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	correlationID := "test-correlation-123"

	event := NewEventWithCorrelation(TypeStepDecided, 789, 10, "C1", nil, correlationID)

	if event.CorrelationID != correlationID {
		t.Errorf("Event CorrelationID = %v, want %v", event.CorrelationID, correlationID)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeExecutionStarted, 1, 2, "C1", map[string]interface{}{
		"key1": "value1",
	})

	modified := original.WithPayload("key2", "value2")

	// Original should be unchanged (immutability)
	if _, exists := original.Payload["key2"]; exists {
		t.Error("Original event should not be modified")
	}

	if modified.Payload["key1"] != "value1" || modified.Payload["key2"] != "value2" {
		t.Error("Modified event should hold both payload keys")
	}

	if modified.ID != original.ID || modified.AggregateID != original.AggregateID || modified.CorrelationID != original.CorrelationID {
		t.Error("Modified event should keep identity fields")
	}
}

func TestEvent_PayloadGetters(t *testing.T) {
	event := NewEvent(TypeStepActivated, 1, 2, "C1", map[string]interface{}{
		"approver":  "E1",
		"step":      2,
		"exec":      int64(7),
		"float":     3.0,
		"notify":    []string{"E1", "E2"},
		"notifyAny": []interface{}{"E3", 4},
		"proxy":     true,
	})

	if got := event.GetPayloadString("approver"); got != "E1" {
		t.Errorf("GetPayloadString() = %v, want E1", got)
	}
	if got := event.GetPayloadString("step"); got != "" {
		t.Errorf("GetPayloadString(non-string) = %v, want empty", got)
	}
	if got := event.GetPayloadInt("step"); got != 2 {
		t.Errorf("GetPayloadInt(int) = %v, want 2", got)
	}
	if got := event.GetPayloadInt("exec"); got != 7 {
		t.Errorf("GetPayloadInt(int64) = %v, want 7", got)
	}
	if got := event.GetPayloadInt("float"); got != 3 {
		t.Errorf("GetPayloadInt(float64) = %v, want 3", got)
	}
	if got := event.GetPayloadInt("missing"); got != 0 {
		t.Errorf("GetPayloadInt(missing) = %v, want 0", got)
	}
	if got := event.GetPayloadStrings("notify"); len(got) != 2 {
		t.Errorf("GetPayloadStrings() = %v, want 2 items", got)
	}
	if got := event.GetPayloadStrings("notifyAny"); len(got) != 1 || got[0] != "E3" {
		t.Errorf("GetPayloadStrings(mixed) = %v, want [E3]", got)
	}
	if !event.GetPayloadBool("proxy") || event.GetPayloadBool("missing") {
		t.Error("GetPayloadBool() returned wrong values")
	}
}
