package hints

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/localstore"
)

// stubSender records delivered hints and can be told to fail the next N
// attempts before succeeding, to exercise the sleep-and-recheck path.
type stubSender struct {
	mu        sync.Mutex
	failTimes int
	delivered []Hint
}

func (s *stubSender) SendHint(ctx context.Context, h Hint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTimes > 0 {
		s.failTimes--
		return context.DeadlineExceeded
	}
	s.delivered = append(s.delivered, h)
	return nil
}

func (s *stubSender) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestReplayerDrainsQueueOnceEndpointReportedAlive(t *testing.T) {
	// S5: write stored a hint for C while C was down; C returns alive and
	// the replayer must deliver the queued mutation without further
	// prompting.
	store := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	store.StoreHint("C", mut)

	fd := failuredetector.NewHeartbeat(time.Minute)
	fd.UpdateTimestamp("C")

	sender := &stubSender{}
	r := NewReplayer(store, sender, fd, 50*time.Millisecond, 0, zap.NewNop())

	r.NotifyAlive("C")
	require.Eventually(t, func() bool { return sender.deliveredCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, store.GetHintCount("C"))
}

func TestReplayerDoesNotDrainWhileEndpointIsDead(t *testing.T) {
	store := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	store.StoreHint("C", mut)
	store.StoreHint("C", mut)

	fd := failuredetector.NewHeartbeat(time.Minute)
	// Never marked alive: IsAlive("C") is false from the start.
	sender := &stubSender{}
	r := NewReplayer(store, sender, fd, 50*time.Millisecond, 0, zap.NewNop())

	r.NotifyAlive("C")
	time.Sleep(100 * time.Millisecond)

	require.Equal(t, 0, sender.deliveredCount())
	require.Equal(t, 2, store.GetHintCount("C"))
}

func TestReplayerRetriesAfterTransientFailure(t *testing.T) {
	store := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	store.StoreHint("C", mut)

	fd := failuredetector.NewHeartbeat(time.Minute)
	fd.UpdateTimestamp("C")

	sender := &stubSender{failTimes: 1}
	r := NewReplayer(store, sender, fd, 20*time.Millisecond, 0, zap.NewNop())

	r.NotifyAlive("C")
	require.Eventually(t, func() bool { return sender.deliveredCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, store.GetHintCount("C"))
}

func TestReplayerNotifyAliveIsSingleFlightPerEndpoint(t *testing.T) {
	store := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	for i := 0; i < 5; i++ {
		store.StoreHint("C", mut)
	}

	fd := failuredetector.NewHeartbeat(time.Minute)
	fd.UpdateTimestamp("C")

	sender := &stubSender{}
	r := NewReplayer(store, sender, fd, 50*time.Millisecond, 0, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.NotifyAlive("C")
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return sender.deliveredCount() == 5 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, store.GetHintCount("C"))
}
