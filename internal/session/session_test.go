package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/threadbridge/internal/platform"
)

func TestDoSerializesMutations(t *testing.T) {
	sess := New("mm1", "thread1", "alice")
	defer sess.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Do(func() { sess.LastActivity = time.Now() })
		}()
	}
	wg.Wait()
	// No data race (run with -race) and no panic is the assertion here.
}

func TestIsUserAllowed(t *testing.T) {
	sess := New("mm1", "thread1", "alice")
	defer sess.Close()

	require.True(t, sess.IsUserAllowed("alice"))
	require.False(t, sess.IsUserAllowed("bob"))

	sess.Do(func() { sess.AllowedUsers["bob"] = true })
	require.True(t, sess.IsUserAllowed("bob"))
}

func TestPromptQueueFIFO(t *testing.T) {
	sess := New("mm1", "thread1", "alice")
	defer sess.Close()

	sess.Do(func() {
		sess.EnqueuePrompt("first", nil)
		sess.EnqueuePrompt("second", nil)
	})

	var got []string
	sess.Do(func() {
		for {
			p, ok := sess.DequeuePrompt()
			if !ok {
				break
			}
			got = append(got, p.Text)
		}
	})
	require.Equal(t, []string{"first", "second"}, got)
}

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	finCnt  int
	blockCh chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, sess *Session, prompt string, files []platform.FileRef) {
	f.mu.Lock()
	f.ran = append(f.ran, prompt)
	f.mu.Unlock()
	if f.blockCh != nil {
		<-f.blockCh
	}
}

func (f *fakeRunner) Finalize(ctx context.Context, sess *Session) {
	f.mu.Lock()
	f.finCnt++
	f.mu.Unlock()
}

func TestManagerSubmitQueuesWhileRunning(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	sess, created := m.GetOrCreate("mm1", "t1", "alice")
	require.True(t, created)

	runner := &fakeRunner{blockCh: make(chan struct{})}
	m.Submit(context.Background(), sess, "hello", nil, runner)

	// session should now be Running
	var state State
	sess.Do(func() { state = sess.State })
	require.Equal(t, StateRunning, state)

	m.Submit(context.Background(), sess, "second message", nil, runner)

	var queued []string
	sess.Do(func() {
		for {
			p, ok := sess.DequeuePrompt()
			if !ok {
				break
			}
			queued = append(queued, p.Text)
		}
	})
	require.Equal(t, []string{"second message"}, queued)

	close(runner.blockCh)
	require.Eventually(t, func() bool {
		var s State
		sess.Do(func() { s = sess.State })
		return s == StateIdle
	}, time.Second, 10*time.Millisecond)
}

func TestManagerTerminateRemovesSession(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	sess, _ := m.GetOrCreate("mm1", "t1", "alice")
	runner := &fakeRunner{}
	m.Terminate(context.Background(), sess, runner)

	_, ok := m.Get(sess.SessionID)
	require.False(t, ok)
	require.Equal(t, 1, runner.finCnt)

	// Second terminate is a no-op, not a double finalize.
	m.Terminate(context.Background(), sess, runner)
	require.Equal(t, 1, runner.finCnt)
}

func TestManagerIdleSweepInvokesReaper(t *testing.T) {
	m := NewManager()
	m.IdleTimeout = time.Millisecond
	defer m.Shutdown()

	sess, _ := m.GetOrCreate("mm1", "t1", "alice")
	sess.Do(func() {
		sess.State = StateIdle
		sess.LastActivity = time.Now().Add(-time.Hour)
	})

	reaped := make(chan string, 1)
	m.SetIdleReaper(func(s *Session) { reaped <- s.SessionID })

	m.sweepIdle()

	select {
	case id := <-reaped:
		require.Equal(t, sess.SessionID, id)
	case <-time.After(time.Second):
		t.Fatal("expected idle reaper to fire")
	}
}
