package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nearbuy/backend/internal/chat"
	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/notify"
	"github.com/nearbuy/backend/internal/repository"
)

var (
	// ErrInvalidTransition is returned when a lifecycle action targets a
	// request that is not in the state the action requires.
	ErrInvalidTransition = errors.New("request is not in a state that allows this transition")
	// ErrPermissionDenied is returned when the caller is not the party a
	// lifecycle action belongs to.
	ErrPermissionDenied = errors.New("caller is not permitted to act on this request")
	// ErrOwnItem is returned when a seller tries to request their own item.
	ErrOwnItem = errors.New("cannot request your own item")
)

// RequestService owns the buy-request state machine:
//
//	(none) --Create--> pending --Accept--> accepted --ConfirmDelivery--> delivered
//	                      |
//	                      +-----Reject---> rejected
//
// Accepted requests are exclusive per item: accepting one pending request
// rejects every other pending request for the same item. All transitions out
// of pending are guarded compare-and-swap writes, and accepts for one item
// are serialized, so the cascade appears atomic to concurrent readers.
type RequestService struct {
	requests repository.RequestStore
	items    repository.ItemStore
	chats    *chat.Provisioner
	notifier *notify.Dispatcher
	locks    *itemLocks
	logger   *slog.Logger
	nowFn    func() time.Time
	newID    func() string
}

func NewRequestService(
	requests repository.RequestStore,
	items repository.ItemStore,
	chats *chat.Provisioner,
	notifier *notify.Dispatcher,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		items:    items,
		chats:    chats,
		notifier: notifier,
		locks:    newItemLocks(),
		logger:   logger,
		nowFn:    time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *RequestService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Create records a buyer's request for an item and notifies the seller. At
// most one request may exist per (item, buyer) pair; the store's uniqueness
// constraint is the backstop for the pre-insert check racing a duplicate.
func (s *RequestService) Create(ctx context.Context, itemID, buyerID, buyerName string) (*entity.Request, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SellerID == buyerID {
		return nil, ErrOwnItem
	}

	if _, err := s.requests.Find(ctx, itemID, buyerID); err == nil {
		return nil, repository.ErrDuplicateRequest
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing request: %w", err)
	}

	req := &entity.Request{
		ID:        s.newID(),
		ItemID:    item.ID,
		ItemTitle: item.Title,
		BuyerID:   buyerID,
		BuyerName: buyerName,
		SellerID:  item.SellerID,
		Status:    entity.StatusPending,
		CreatedAt: s.nowFn(),
	}
	if err := s.requests.Insert(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Request created", "request", req.ID, "item", req.ItemID, "buyer", buyerID)
	s.notifier.RequestReceived(ctx, req)
	return req, nil
}

// Accept marks a pending request as the item's winner, provisions the chat
// channel, and rejects every other pending request for the item. Accepting
// an already-accepted request succeeds without re-firing the chat or the
// notifications, but still settles any pending losers so a failed cascade
// can be retried.
func (s *RequestService) Accept(ctx context.Context, requestID, callerID string) (*entity.Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SellerID != callerID {
		return nil, ErrPermissionDenied
	}

	// Serialize accepts per item so the cascade below always runs against a
	// settled winner.
	lock := s.locks.get(req.ItemID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent accept may have settled the item
	// while we waited.
	req, err = s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case entity.StatusAccepted:
		// Duplicate accept of the same request: don't re-fire the chat or
		// the notifications, but re-run the cascade in case an earlier
		// attempt committed the winner and then failed before settling the
		// losers. The cascade's CAS guard makes the re-run a no-op when
		// everything already settled.
		if err := s.rejectOtherPending(ctx, req); err != nil {
			return req, err
		}
		return req, nil
	case entity.StatusPending:
	default:
		return nil, ErrInvalidTransition
	}

	ok, err := s.requests.UpdateStatus(ctx, req.ID, entity.StatusPending, entity.StatusAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	req.Status = entity.StatusAccepted
	s.logger.Info("Request accepted", "request", req.ID, "item", req.ItemID)

	// Chat provisioning and notifications are best-effort once the
	// transition has committed.
	if _, err := s.chats.EnsureChannel(ctx, req.ItemID, req.BuyerID, req.SellerID); err != nil {
		s.logger.Error("Failed to provision chat channel", "request", req.ID, "err", err)
	}
	s.notifier.RequestAccepted(ctx, req)

	if err := s.rejectOtherPending(ctx, req); err != nil {
		// The winner is committed; surface the error so the caller can
		// retry, which re-runs the (idempotent) cascade.
		return req, err
	}
	return req, nil
}

func (s *RequestService) rejectOtherPending(ctx context.Context, winner *entity.Request) error {
	pending, err := s.requests.ListPendingForItem(ctx, winner.ItemID)
	if err != nil {
		return fmt.Errorf("failed to list pending requests for cascade: %w", err)
	}

	for i := range pending {
		loser := pending[i]
		if loser.ID == winner.ID {
			continue
		}
		ok, err := s.requests.UpdateStatus(ctx, loser.ID, entity.StatusPending, entity.StatusRejected)
		if err != nil {
			return fmt.Errorf("failed to reject request %s in cascade: %w", loser.ID, err)
		}
		if !ok {
			// Lost a race against another transition; that transition owns
			// the notification.
			continue
		}
		loser.Status = entity.StatusRejected
		s.notifier.RequestRejected(ctx, &loser, true)
	}
	return nil
}

// Reject declines a pending request. Rejecting an already-rejected request
// is an idempotent no-op.
func (s *RequestService) Reject(ctx context.Context, requestID, callerID string) (*entity.Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SellerID != callerID {
		return nil, ErrPermissionDenied
	}

	ok, err := s.requests.UpdateStatus(ctx, req.ID, entity.StatusPending, entity.StatusRejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		req, err = s.requests.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.Status == entity.StatusRejected {
			return req, nil
		}
		return nil, ErrInvalidTransition
	}

	req.Status = entity.StatusRejected
	s.logger.Info("Request rejected", "request", req.ID, "item", req.ItemID)
	s.notifier.RequestRejected(ctx, req, false)
	return req, nil
}

// ConfirmDelivery is the buyer's confirmation that the accepted transaction
// completed. It marks the item sold and notifies the seller. Confirming an
// already-delivered request is an idempotent no-op.
func (s *RequestService) ConfirmDelivery(ctx context.Context, requestID, callerID string) (*entity.Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != callerID {
		return nil, ErrPermissionDenied
	}

	ok, err := s.requests.UpdateStatus(ctx, req.ID, entity.StatusAccepted, entity.StatusDelivered)
	if err != nil {
		return nil, err
	}
	if !ok {
		req, err = s.requests.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.Status != entity.StatusDelivered {
			return nil, ErrInvalidTransition
		}
		// Idempotent retry: make sure the sold flag landed, then stop
		// without re-firing the notification.
		if err := s.items.MarkSold(ctx, req.ItemID); err != nil {
			return req, fmt.Errorf("failed to mark item sold: %w", err)
		}
		return req, nil
	}
	req.Status = entity.StatusDelivered

	if err := s.items.MarkSold(ctx, req.ItemID); err != nil {
		return req, fmt.Errorf("failed to mark item sold: %w", err)
	}

	s.logger.Info("Delivery confirmed", "request", req.ID, "item", req.ItemID)
	s.notifier.OrderDelivered(ctx, req)
	return req, nil
}

// HasRequested reports whether the buyer already holds a request for the
// item, whatever its status.
func (s *RequestService) HasRequested(ctx context.Context, itemID, buyerID string) (bool, error) {
	_, err := s.requests.Find(ctx, itemID, buyerID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListForSeller returns every request addressed to the seller.
func (s *RequestService) ListForSeller(ctx context.Context, sellerID string) ([]entity.Request, error) {
	return s.requests.ListForSeller(ctx, sellerID)
}

// ListForBuyer returns the buyer's requests across all items.
func (s *RequestService) ListForBuyer(ctx context.Context, buyerID string) ([]entity.Request, error) {
	return s.requests.ListForBuyer(ctx, buyerID)
}
