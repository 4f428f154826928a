package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearbuy/backend/internal/chat"
	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/notify"
	"github.com/nearbuy/backend/internal/repository"
	"github.com/nearbuy/backend/internal/repository/memory"
)

// capturePublisher records published notification events.
type capturePublisher struct {
	mu     sync.Mutex
	events []entity.NotificationEvent
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, event any) error {
	ev, ok := event.(entity.NotificationEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) byKind(kind entity.NotificationKind) []entity.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []entity.NotificationEvent
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	svc      *RequestService
	items    *memory.ItemStore
	requests *memory.RequestStore
	chats    *memory.ChatStore
	pub      *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		items:    memory.NewItemStore(),
		requests: memory.NewRequestStore(),
		chats:    memory.NewChatStore(),
		pub:      &capturePublisher{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewRequestService(
		f.requests,
		f.items,
		chat.NewProvisioner(f.chats),
		notify.NewDispatcher(f.pub, logger),
		logger,
	)

	err := f.items.Put(context.Background(), entity.Item{
		ID:       "item-1",
		SellerID: "seller-1",
		Title:    "Vintage Camera",
		Price:    120,
		PostedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return f
}

func TestCreateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "item-1", "buyer-1", "John Doe")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, req.Status)
	assert.Equal(t, "seller-1", req.SellerID)
	assert.Equal(t, "Vintage Camera", req.ItemTitle)

	received := f.pub.byKind(entity.NotifyRequestReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "seller-1", received[0].TargetUserID)
	assert.Equal(t, req.ID, received[0].RequestID)
}

func TestCreateDuplicateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "item-1", "buyer-1", "John Doe")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "item-1", "buyer-1", "John Doe")
	require.ErrorIs(t, err, repository.ErrDuplicateRequest)

	// Only the first create notified the seller.
	assert.Len(t, f.pub.byKind(entity.NotifyRequestReceived), 1)
}

func TestCreateRequestErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "missing", "buyer-1", "John Doe")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Create(ctx, "item-1", "seller-1", "The Seller")
	require.ErrorIs(t, err, ErrOwnItem)
}

func TestAcceptRejectsOtherPendingRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, "item-1", "buyer-2", "B2")
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, first.ID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, accepted.Status)

	got, err := f.requests.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, got.Status)

	pending, err := f.requests.ListPendingForItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Chat channel for the winning triple.
	assert.Equal(t, 1, f.chats.Count())

	acceptedEvents := f.pub.byKind(entity.NotifyRequestAccepted)
	require.Len(t, acceptedEvents, 1)
	assert.Equal(t, "buyer-1", acceptedEvents[0].TargetUserID)

	rejectedEvents := f.pub.byKind(entity.NotifyRequestRejected)
	require.Len(t, rejectedEvents, 1)
	assert.Equal(t, "buyer-2", rejectedEvents[0].TargetUserID)
	assert.Contains(t, rejectedEvents[0].Message, "sold to another buyer")
}

func TestAcceptCascadeManyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var winner *entity.Request
	for i := 0; i < 5; i++ {
		req, err := f.svc.Create(ctx, "item-1", fmt.Sprintf("buyer-%d", i), fmt.Sprintf("B%d", i))
		require.NoError(t, err)
		if i == 2 {
			winner = req
		}
	}

	_, err := f.svc.Accept(ctx, winner.ID, "seller-1")
	require.NoError(t, err)

	pending, err := f.requests.ListPendingForItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := f.requests.Get(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, got.Status)

	assert.Len(t, f.pub.byKind(entity.NotifyRequestRejected), 4)
}

func TestAcceptIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, req.ID, "seller-1")
	require.NoError(t, err)
	eventsAfterFirst := f.pub.count()

	again, err := f.svc.Accept(ctx, req.ID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, again.Status)

	// No duplicate channel, no re-fired events.
	assert.Equal(t, 1, f.chats.Count())
	assert.Equal(t, eventsAfterFirst, f.pub.count())
}

// flakyRequestStore fails ListPendingForItem a fixed number of times before
// delegating, simulating a store outage between the winner's commit and the
// cascade.
type flakyRequestStore struct {
	*memory.RequestStore
	listFailures int
}

func (s *flakyRequestStore) ListPendingForItem(ctx context.Context, itemID string) ([]entity.Request, error) {
	if s.listFailures > 0 {
		s.listFailures--
		return nil, fmt.Errorf("store unavailable")
	}
	return s.RequestStore.ListPendingForItem(ctx, itemID)
}

func TestAcceptRetrySettlesStrandedLosers(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewRequestService(
		&flakyRequestStore{RequestStore: f.requests, listFailures: 1},
		f.items,
		chat.NewProvisioner(f.chats),
		notify.NewDispatcher(f.pub, logger),
		logger,
	)
	ctx := context.Background()

	winner, err := svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)
	loser, err := svc.Create(ctx, "item-1", "buyer-2", "B2")
	require.NoError(t, err)

	// The winner commits, then the cascade hits the store failure.
	accepted, err := svc.Accept(ctx, winner.ID, "seller-1")
	require.Error(t, err)
	require.NotNil(t, accepted)
	assert.Equal(t, entity.StatusAccepted, accepted.Status)

	got, err := f.requests.Get(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)

	// Retrying the accept goes through the duplicate-accept path and still
	// settles the stranded loser.
	accepted, err = svc.Accept(ctx, winner.ID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, accepted.Status)

	got, err = f.requests.Get(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, got.Status)

	pending, err := f.requests.ListPendingForItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	rejected := f.pub.byKind(entity.NotifyRequestRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "buyer-2", rejected[0].TargetUserID)

	// The acceptance side effects fired exactly once across both calls.
	assert.Len(t, f.pub.byKind(entity.NotifyRequestAccepted), 1)
	assert.Equal(t, 1, f.chats.Count())
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, req.ID, "someone-else")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Accept(ctx, "missing", "seller-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Reject(ctx, req.ID, "seller-1")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, req.ID, "seller-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConcurrentAcceptsOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reqA, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)
	reqB, err := f.svc.Create(ctx, "item-1", "buyer-2", "B2")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{reqA.ID, reqB.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, id, "seller-1")
		}(i, id)
	}
	wg.Wait()

	var accepted, rejected int
	for _, id := range []string{reqA.ID, reqB.ID} {
		got, err := f.requests.Get(ctx, id)
		require.NoError(t, err)
		switch got.Status {
		case entity.StatusAccepted:
			accepted++
		case entity.StatusRejected:
			rejected++
		}
	}
	assert.Equal(t, 1, accepted, "exactly one request may win")
	assert.Equal(t, 1, rejected)

	// One accept succeeded; the other saw a settled item.
	var failures int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidTransition)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, f.chats.Count())
}

func TestRejectRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, req.ID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, rejected.Status)

	events := f.pub.byKind(entity.NotifyRequestRejected)
	require.Len(t, events, 1)
	assert.Equal(t, "buyer-1", events[0].TargetUserID)
	assert.NotContains(t, events[0].Message, "another buyer")

	// Idempotent repeat, no new event.
	_, err = f.svc.Reject(ctx, req.ID, "seller-1")
	require.NoError(t, err)
	assert.Len(t, f.pub.byKind(entity.NotifyRequestRejected), 1)

	_, err = f.svc.Reject(ctx, req.ID, "buyer-1")
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)

	// Only accepted requests can be delivered.
	_, err = f.svc.ConfirmDelivery(ctx, req.ID, "buyer-1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, req.ID, "seller-1")
	require.NoError(t, err)

	// Only the buyer confirms.
	_, err = f.svc.ConfirmDelivery(ctx, req.ID, "seller-1")
	require.ErrorIs(t, err, ErrPermissionDenied)

	delivered, err := f.svc.ConfirmDelivery(ctx, req.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDelivered, delivered.Status)
	assert.True(t, delivered.Status.Terminal())

	item, err := f.items.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, item.IsSold)

	events := f.pub.byKind(entity.NotifyOrderDelivered)
	require.Len(t, events, 1)
	assert.Equal(t, "seller-1", events[0].TargetUserID)

	// Idempotent repeat, no new event.
	_, err = f.svc.ConfirmDelivery(ctx, req.ID, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, f.pub.byKind(entity.NotifyOrderDelivered), 1)

	// Terminal: no accept or reject out of delivered.
	_, err = f.svc.Accept(ctx, req.ID, "seller-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, req.ID, "seller-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestHasRequestedAndListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	has, err := f.svc.HasRequested(ctx, "item-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = f.svc.Create(ctx, "item-1", "buyer-1", "B1")
	require.NoError(t, err)

	has, err = f.svc.HasRequested(ctx, "item-1", "buyer-1")
	require.NoError(t, err)
	assert.True(t, has)

	sellerReqs, err := f.svc.ListForSeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, sellerReqs, 1)

	buyerReqs, err := f.svc.ListForBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, buyerReqs, 1)
}
