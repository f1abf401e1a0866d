package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/eventlog"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(NewInMemoryStore())
}

func create(t *testing.T, svc *Service) *Notification {
	t.Helper()
	n, err := svc.Create(context.Background(), uuid.New(), uuid.New(), ChannelPush)
	require.NoError(t, err)
	return n
}

func TestCreateStartsQueued(t *testing.T) {
	svc := newService(t)
	n := create(t, svc)

	assert.Equal(t, StatusQueued, n.Status)
	assert.Nil(t, n.SentAt)
	assert.Nil(t, n.DeliveredAt)
	assert.False(t, n.IsRead())
	assert.False(t, n.IsDeleted())
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.Nil, uuid.New(), ChannelPush)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Create(ctx, uuid.New(), uuid.New(), Channel("CARRIER_PIGEON"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestStatusLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	n := create(t, svc)

	sent, err := svc.MarkSent(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	delivered, err := svc.MarkDelivered(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	// Terminal: no further transitions.
	_, err = svc.MarkSent(ctx, n.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = svc.MarkFailed(ctx, n.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// interleavingStore lets a test run a competing operation between a
// transition's load and its conditional write.
type interleavingStore struct {
	*InMemoryStore
	ran        bool
	interleave func()
}

func (s *interleavingStore) UpdateStatus(ctx context.Context, n *Notification, prior Status) error {
	if !s.ran && s.interleave != nil {
		s.ran = true
		s.interleave()
	}
	return s.InMemoryStore.UpdateStatus(ctx, n, prior)
}

func TestConcurrentTransitionCannotMoveStatusBackward(t *testing.T) {
	store := &interleavingStore{InMemoryStore: NewInMemoryStore()}
	svc := New(store)
	ctx := context.Background()
	n := create(t, svc)

	// A MarkDelivered commits while MarkSent sits between its load of the
	// QUEUED record and its write.
	store.interleave = func() {
		_, err := svc.MarkDelivered(ctx, n.ID)
		require.NoError(t, err)
	}

	_, err := svc.MarkSent(ctx, n.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	final, err := svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, final.Status, "stale writer must not undo DELIVERED")
}

func TestDeliveredSkippingSent(t *testing.T) {
	// A recipient may acknowledge before the server marked the record sent.
	svc := newService(t)
	n := create(t, svc)

	delivered, err := svc.MarkDelivered(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, delivered.Status)
}

func TestMarkFailedFromQueuedAndSent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a := create(t, svc)
	failed, err := svc.MarkFailed(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	b := create(t, svc)
	_, err = svc.MarkSent(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.MarkFailed(ctx, b.ID)
	require.NoError(t, err)

	// FAILED is terminal.
	_, err = svc.MarkDelivered(ctx, a.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestReadIsOrthogonalToStatus(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	n := create(t, svc)

	read, err := svc.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead())
	assert.Equal(t, StatusQueued, read.Status, "read must not move the status machine")

	firstReadAt := *read.ReadAt
	again, err := svc.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, firstReadAt, *again.ReadAt, "MarkRead is idempotent")
}

func TestSoftDeleteHidesFromListing(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	kept, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
	require.NoError(t, err)
	gone, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, gone.ID))

	items, total, err := svc.ListByUser(ctx, userID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ID)

	// Record still exists for direct lookup.
	deleted, err := svc.Get(ctx, gone.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
}

func TestListByUserOrdersNewestFirstAndPages(t *testing.T) {
	now := time.Now()
	clock := now
	svc := New(NewInMemoryStore(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()
	userID := uuid.New()

	var created []uuid.UUID
	for i := 0; i < 5; i++ {
		n, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
		require.NoError(t, err)
		created = append(created, n.ID)
	}

	items, total, err := svc.ListByUser(ctx, userID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, created[4], items[0].ID, "newest first")
	assert.Equal(t, created[3], items[1].ID)

	items, _, err = svc.ListByUser(ctx, userID, 3, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, created[0], items[0].ID)

	items, _, err = svc.ListByUser(ctx, userID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCounts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	q, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
	require.NoError(t, err)
	sent, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
	require.NoError(t, err)
	deliveredN, err := svc.Create(ctx, uuid.New(), userID, ChannelPush)
	require.NoError(t, err)

	_, err = svc.MarkSent(ctx, sent.ID)
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, deliveredN.ID)
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, q.ID)
	require.NoError(t, err)

	undelivered, err := svc.CountUndelivered(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, undelivered, "QUEUED and SENT count as undelivered")

	unread, err := svc.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	changed, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	unread, err = svc.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestListQueuedByChannel(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), uuid.New(), ChannelPush)
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), uuid.New(), ChannelEmail)
	require.NoError(t, err)

	all, err := svc.ListQueued(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	push, err := svc.ListQueued(ctx, ChannelPush)
	require.NoError(t, err)
	require.Len(t, push, 1)
	assert.Equal(t, ChannelPush, push[0].Channel)

	_, err = svc.ListQueued(ctx, Channel("FAX"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPurgeOlderThan(t *testing.T) {
	base := time.Now()
	current := base
	svc := New(NewInMemoryStore(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	old, err := svc.Create(ctx, uuid.New(), uuid.New(), ChannelPush)
	require.NoError(t, err)

	current = base.Add(48 * time.Hour)
	fresh, err := svc.Create(ctx, uuid.New(), uuid.New(), ChannelPush)
	require.NoError(t, err)

	purged, err := svc.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = svc.Get(ctx, old.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = svc.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

type capturingEventLog struct {
	events []eventlog.Event
}

func (l *capturingEventLog) Emit(_ context.Context, ev eventlog.Event) error {
	l.events = append(l.events, ev)
	return nil
}

func TestEmitsLifecycleEvents(t *testing.T) {
	events := &capturingEventLog{}
	svc := New(NewInMemoryStore(), WithEventLog(events))
	ctx := context.Background()

	alertID := uuid.New()
	userID := uuid.New()
	n, err := svc.Create(ctx, alertID, userID, ChannelPush)
	require.NoError(t, err)
	_, err = svc.MarkSent(ctx, n.ID)
	require.NoError(t, err)

	require.Len(t, events.events, 2)

	created := events.events[0]
	assert.Equal(t, eventlog.KindNotificationCreated, created.Kind)
	assert.Equal(t, alertID, created.AlertID)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, string(ChannelPush), created.Metadata["channel"])

	changed := events.events[1]
	assert.Equal(t, eventlog.KindNotificationStatusChanged, changed.Kind)
	assert.Equal(t, string(StatusQueued), changed.Metadata["from"])
	assert.Equal(t, string(StatusSent), changed.Metadata["to"])
}

func TestGetUnknown(t *testing.T) {
	svc := newService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
