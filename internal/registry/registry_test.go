package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func (f *fakeSender) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection closed")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestRegisterUnregisterOnline(t *testing.T) {
	r := New()
	id := uuid.New()

	assert.False(t, r.IsOnline(id))

	r.Register(id, "s1", &fakeSender{})
	assert.True(t, r.IsOnline(id))

	// Second device for the same identity.
	r.Register(id, "s2", &fakeSender{})
	r.Unregister(id, "s1")
	assert.True(t, r.IsOnline(id), "still online while one session remains")

	r.Unregister(id, "s2")
	assert.False(t, r.IsOnline(id), "offline once the last session is gone")

	identities, sessions := r.Counts()
	assert.Zero(t, identities)
	assert.Zero(t, sessions)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	id := uuid.New()

	r.Register(id, "s1", &fakeSender{})
	r.Register(id, "s1", &fakeSender{})

	identities, sessions := r.Counts()
	assert.Equal(t, 1, identities)
	assert.Equal(t, 1, sessions)
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := New()
	r.Unregister(uuid.New(), "nope")

	id := uuid.New()
	r.Register(id, "s1", &fakeSender{})
	r.Unregister(id, "other-session")
	assert.True(t, r.IsOnline(id))
}

func TestSendReachesAllSessions(t *testing.T) {
	r := New()
	id := uuid.New()
	a, b := &fakeSender{}, &fakeSender{}
	r.Register(id, "s1", a)
	r.Register(id, "s2", b)

	require.True(t, r.Send(id, []byte(`{"event":"NEW_ALERT"}`)))
	assert.Equal(t, 1, a.sent())
	assert.Equal(t, 1, b.sent())
}

func TestSendToOfflineIdentityReturnsFalse(t *testing.T) {
	r := New()
	assert.False(t, r.Send(uuid.New(), []byte("x")))
}

func TestSendPurgesStaleSession(t *testing.T) {
	r := New()
	id := uuid.New()
	dead := &fakeSender{fail: true}
	live := &fakeSender{}
	r.Register(id, "dead", dead)
	r.Register(id, "live", live)

	assert.True(t, r.Send(id, []byte("x")), "delivery to the live session still counts")

	_, sessions := r.Counts()
	assert.Equal(t, 1, sessions, "failed session must be purged")
	assert.True(t, r.IsOnline(id))

	r.Unregister(id, "live")
	assert.False(t, r.Send(id, []byte("y")))
}

func TestOnlineIdentitiesSnapshot(t *testing.T) {
	r := New()
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < 50; i++ {
		id := uuid.New()
		ids[id] = true
		r.Register(id, "s", &fakeSender{})
	}

	snapshot := r.OnlineIdentities()
	require.Len(t, snapshot, 50)
	for _, id := range snapshot {
		assert.True(t, ids[id])
	}
}

func TestConcurrentRegistrationNeverOvercounts(t *testing.T) {
	r := New()
	const identities = 1000

	ids := make([]uuid.UUID, identities)
	for i := range ids {
		ids[i] = uuid.New()
	}

	done := make(chan struct{})
	var snapshots sync.WaitGroup
	snapshots.Add(1)
	go func() {
		defer snapshots.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			n := len(r.OnlineIdentities())
			identitiesNow, sessionsNow := r.Counts()
			assert.LessOrEqual(t, n, identities)
			assert.LessOrEqual(t, identitiesNow, identities)
			assert.LessOrEqual(t, sessionsNow, 2*identities)
		}
	}()

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			s1 := fmt.Sprintf("s%d-1", i)
			s2 := fmt.Sprintf("s%d-2", i)
			r.Register(id, s1, &fakeSender{})
			r.Register(id, s2, &fakeSender{})
			r.Unregister(id, s1)
			r.Send(id, []byte("x"))
			r.Unregister(id, s2)
		}(i, id)
	}
	wg.Wait()
	close(done)
	snapshots.Wait()

	identitiesNow, sessionsNow := r.Counts()
	assert.Zero(t, identitiesNow)
	assert.Zero(t, sessionsNow)
}
