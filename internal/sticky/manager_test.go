package sticky

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/tracker"
)

type fakePublisher struct {
	mu       sync.Mutex
	nextID   int
	created  []string
	deleted  []string
	pinned   []string
	unpinned []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (f *fakePublisher) CreatePost(ctx context.Context, threadID, body string) (platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, body)
	return platform.Post{ID: "post" + string(rune('0'+f.nextID)), ThreadID: threadID}, nil
}
func (f *fakePublisher) CreateInteractivePost(ctx context.Context, threadID, body string, initialReactions []string) (platform.Post, error) {
	return f.CreatePost(ctx, threadID, body)
}
func (f *fakePublisher) UpdatePost(ctx context.Context, postID, body string) error { return nil }
func (f *fakePublisher) DeletePost(ctx context.Context, postID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, postID)
	f.mu.Unlock()
	return nil
}
func (f *fakePublisher) PinPost(ctx context.Context, postID string) error {
	f.mu.Lock()
	f.pinned = append(f.pinned, postID)
	f.mu.Unlock()
	return nil
}
func (f *fakePublisher) UnpinPost(ctx context.Context, postID string) error {
	f.mu.Lock()
	f.unpinned = append(f.unpinned, postID)
	f.mu.Unlock()
	return nil
}
func (f *fakePublisher) AddReaction(ctx context.Context, postID, emoji string) error    { return nil }
func (f *fakePublisher) RemoveReaction(ctx context.Context, postID, emoji string) error { return nil }
func (f *fakePublisher) SendTyping(ctx context.Context, threadID string)                {}
func (f *fakePublisher) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, platform.ErrUnsupported
}

func TestBumpTaskListPinsAndRestoresToggleReaction(t *testing.T) {
	tr := tracker.New()
	pub := newFakePublisher()
	m := NewManager(tr, pub)
	ctx := context.Background()

	first, err := m.BumpTaskList(ctx, "sess1", "thread1", "", "checklist v1", []string{"eye"})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.BumpTaskList(ctx, "sess1", "thread1", first, "checklist v2", []string{"eye"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.Contains(t, pub.unpinned, first, "bumping must unpin the old post")
	require.Contains(t, pub.deleted, first, "bumping must delete the old post")
	require.Contains(t, pub.pinned, second, "bumping must pin the new post")

	rec, ok := tr.Get(second)
	require.True(t, ok)
	require.Equal(t, tracker.KindTaskList, rec.Kind)
	require.Equal(t, tracker.InteractionToggleMinimize, rec.InteractionKind)

	_, ok = tr.Get(first)
	require.False(t, ok, "the old post must be unregistered from the tracker")
}

func TestBumpTaskListFirstCallHasNoOldPostToTearDown(t *testing.T) {
	tr := tracker.New()
	pub := newFakePublisher()
	m := NewManager(tr, pub)
	ctx := context.Background()

	postID, err := m.BumpTaskList(ctx, "sess1", "thread1", "", "checklist", []string{"eye"})
	require.NoError(t, err)
	require.Empty(t, pub.deleted)
	require.Empty(t, pub.unpinned)
	require.Contains(t, pub.pinned, postID)
}

func TestBumpPlanApprovalRecreatesWithReactions(t *testing.T) {
	tr := tracker.New()
	pub := newFakePublisher()
	m := NewManager(tr, pub)
	ctx := context.Background()

	postID, err := m.BumpPlanApproval(ctx, "sess1", "thread1", "", "plan body", []string{"thumbsup", "thumbsdown"})
	require.NoError(t, err)
	rec, ok := tr.Get(postID)
	require.True(t, ok)
	require.Equal(t, tracker.KindPlanApproval, rec.Kind)
	require.Equal(t, tracker.InteractionPlanApproval, rec.InteractionKind)
}
