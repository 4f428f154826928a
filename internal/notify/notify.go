// Package notify is the boundary through which lifecycle transitions emit
// notification events to the external notification subsystem.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/messaging"
)

// Topic is the broker topic notification events are published to.
const Topic = "notifications"

// Dispatcher builds notification events and publishes them best-effort. A
// failed publish is logged and dropped: the request state machine is the
// source of truth and is never rolled back for a lost notification.
type Dispatcher struct {
	publisher messaging.Publisher
	logger    *slog.Logger
	nowFn     func() time.Time
}

func NewDispatcher(publisher messaging.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (d *Dispatcher) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		d.nowFn = nowFn
	}
}

// RequestReceived tells the seller a buyer wants their item.
func (d *Dispatcher) RequestReceived(ctx context.Context, req *entity.Request) {
	d.emit(ctx, entity.NotificationEvent{
		TargetUserID: req.SellerID,
		Kind:         entity.NotifyRequestReceived,
		Message:      fmt.Sprintf("%s wants to buy %q", req.BuyerName, req.ItemTitle),
		ItemID:       req.ItemID,
		RequestID:    req.ID,
	})
}

// RequestAccepted tells the winning buyer their request was accepted.
func (d *Dispatcher) RequestAccepted(ctx context.Context, req *entity.Request) {
	d.emit(ctx, entity.NotificationEvent{
		TargetUserID: req.BuyerID,
		Kind:         entity.NotifyRequestAccepted,
		Message:      fmt.Sprintf("Congratulations! Your request for %q was accepted!", req.ItemTitle),
		ItemID:       req.ItemID,
		RequestID:    req.ID,
	})
}

// RequestRejected tells a buyer their request was declined. claimedByOther
// distinguishes a cascade rejection (the item went to another buyer) from an
// explicit seller decline.
func (d *Dispatcher) RequestRejected(ctx context.Context, req *entity.Request, claimedByOther bool) {
	message := fmt.Sprintf("Your request for %q was declined.", req.ItemTitle)
	if claimedByOther {
		message = fmt.Sprintf("Item sold: your request for %q was declined because it was sold to another buyer.", req.ItemTitle)
	}
	d.emit(ctx, entity.NotificationEvent{
		TargetUserID: req.BuyerID,
		Kind:         entity.NotifyRequestRejected,
		Message:      message,
		ItemID:       req.ItemID,
		RequestID:    req.ID,
	})
}

// OrderDelivered tells the seller the buyer confirmed delivery.
func (d *Dispatcher) OrderDelivered(ctx context.Context, req *entity.Request) {
	d.emit(ctx, entity.NotificationEvent{
		TargetUserID: req.SellerID,
		Kind:         entity.NotifyOrderDelivered,
		Message:      fmt.Sprintf("Buyer confirmed delivery for %q", req.ItemTitle),
		ItemID:       req.ItemID,
		RequestID:    req.ID,
	})
}

func (d *Dispatcher) emit(ctx context.Context, event entity.NotificationEvent) {
	event.CreatedAt = d.nowFn()
	if err := d.publisher.Publish(ctx, Topic, event.TargetUserID, event); err != nil {
		d.logger.Error("Failed to publish notification",
			"kind", event.Kind, "target", event.TargetUserID, "err", err)
	}
}
