package entity

import "time"

// NotificationKind is the closed set of notification types the engine emits.
type NotificationKind string

const (
	NotifyRequestReceived NotificationKind = "REQUEST_RECEIVED"
	NotifyRequestAccepted NotificationKind = "REQUEST_ACCEPTED"
	NotifyRequestRejected NotificationKind = "REQUEST_REJECTED"
	NotifyOrderDelivered  NotificationKind = "ORDER_DELIVERED"
)

// NotificationEvent is emitted to the external notification subsystem after a
// lifecycle transition commits. Delivery is fire-and-forget from the engine's
// perspective; the event is never a source of truth for request state.
type NotificationEvent struct {
	TargetUserID string           `json:"target_user_id"`
	Kind         NotificationKind `json:"kind"`
	Message      string           `json:"message"`
	ItemID       string           `json:"item_id"`
	RequestID    string           `json:"request_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (e NotificationEvent) EventType() string { return string(e.Kind) }
