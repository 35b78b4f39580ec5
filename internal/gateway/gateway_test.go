package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
)

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeRunner) Run(ctx context.Context, sess *session.Session, prompt string, files []platform.FileRef) {
	f.mu.Lock()
	f.ran = append(f.ran, prompt)
	f.mu.Unlock()
}
func (f *fakeRunner) Finalize(ctx context.Context, sess *session.Session) {}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

type fakeIngester struct {
	denied map[string]bool
}

func (f *fakeIngester) MessageEvents() <-chan platform.MessageEvent   { return nil }
func (f *fakeIngester) ReactionEvents() <-chan platform.ReactionEvent { return nil }
func (f *fakeIngester) IsUserAllowed(user string) bool                { return !f.denied[user] }

type fakePublisher struct {
	mu    sync.Mutex
	posts []string
}

func (f *fakePublisher) CreatePost(ctx context.Context, threadID, body string) (platform.Post, error) {
	f.mu.Lock()
	f.posts = append(f.posts, body)
	f.mu.Unlock()
	return platform.Post{ID: "p1", ThreadID: threadID}, nil
}
func (f *fakePublisher) CreateInteractivePost(ctx context.Context, threadID, body string, initialReactions []string) (platform.Post, error) {
	return f.CreatePost(ctx, threadID, body)
}
func (f *fakePublisher) UpdatePost(ctx context.Context, postID, body string) error { return nil }
func (f *fakePublisher) DeletePost(ctx context.Context, postID string) error       { return nil }
func (f *fakePublisher) PinPost(ctx context.Context, postID string) error          { return nil }
func (f *fakePublisher) UnpinPost(ctx context.Context, postID string) error        { return nil }
func (f *fakePublisher) AddReaction(ctx context.Context, postID, emoji string) error {
	return nil
}
func (f *fakePublisher) RemoveReaction(ctx context.Context, postID, emoji string) error {
	return nil
}
func (f *fakePublisher) SendTyping(ctx context.Context, threadID string) {}
func (f *fakePublisher) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, platform.ErrUnsupported
}

type fakeFormatter struct{}

func (fakeFormatter) Bold(s string) string            { return s }
func (fakeFormatter) Italic(s string) string           { return s }
func (fakeFormatter) Code(s string) string             { return s }
func (fakeFormatter) CodeBlock(lang, s string) string  { return "```" + s + "```" }
func (fakeFormatter) Link(text, url string) string     { return text }
func (fakeFormatter) Strikethrough(s string) string    { return s }
func (fakeFormatter) UserMention(userID string) string { return userID }
func (fakeFormatter) HorizontalRule() string           { return "---" }
func (fakeFormatter) Heading(level int, s string) string { return s }
func (fakeFormatter) MarkdownToNative(s string) string   { return s }

func TestGatewayStartsSessionOnlyOnMention(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "hello", IsMention: false})
	_, ok := mgr.Get("mm1:t1")
	require.False(t, ok, "a reply with no prior session and no mention must not start one")

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	_, ok = mgr.Get("mm1:t1")
	require.True(t, ok)
}

func TestGatewayContinuesExistingSessionWithoutMention(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "@bot start", IsMention: true})
	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "alice", Text: "a follow-up", IsMention: false})

	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, time.Millisecond)
}

func TestGatewayDropsDisallowedUser(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{denied: map[string]bool{"eve": true}}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "eve", Text: "@bot hello", IsMention: true})
	_, ok := mgr.Get("mm1:t1")
	require.False(t, ok)
}

func TestGatewayHelpCommandPostsFormattedHelpText(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	pub := &fakePublisher{}
	gw := New("mm1", mgr, &fakeRunner{}, &fakeIngester{}, pub, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "!help"})

	require.Len(t, pub.posts, 1)
	require.Contains(t, pub.posts[0], "!new")
	require.Contains(t, pub.posts[0], "```")
}

func TestGatewayCancelTerminatesSession(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, time.Millisecond)

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "alice", Text: "!cancel"})
	_, ok := mgr.Get("mm1:t1")
	require.False(t, ok)
}

func TestGatewayRateLimitsPerUser(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	for i := 0; i < perUserBurst+3; i++ {
		gw.handle(context.Background(), platform.MessageEvent{PostID: "p", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	}

	require.LessOrEqual(t, r.count(), perUserBurst, "bursts beyond the per-user budget must be dropped")
}

func TestGatewayInviteGrantsSessionAccess(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	sess, ok := mgr.Get("mm1:t1")
	require.True(t, ok)
	require.False(t, sess.IsUserAllowed("mallory"))

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "alice", Text: "!invite @mallory"})
	require.True(t, sess.IsUserAllowed("mallory"))
}

func TestGatewayKickRevokesSessionAccess(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	sess, _ := mgr.Get("mm1:t1")
	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "alice", Text: "!invite @mallory"})
	require.True(t, sess.IsUserAllowed("mallory"))

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p3", ThreadID: "t1", User: "alice", Text: "!kick @mallory"})
	require.False(t, sess.IsUserAllowed("mallory"))
}

func TestGatewayInviteFromDisallowedUserIsIgnored(t *testing.T) {
	mgr := session.NewManager()
	defer mgr.Shutdown()
	r := &fakeRunner{}
	gw := New("mm1", mgr, r, &fakeIngester{}, &fakePublisher{}, fakeFormatter{}, zerolog.Nop())

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p1", ThreadID: "t1", User: "alice", Text: "@bot hello", IsMention: true})
	sess, _ := mgr.Get("mm1:t1")

	gw.handle(context.Background(), platform.MessageEvent{PostID: "p2", ThreadID: "t1", User: "mallory", Text: "!invite @mallory"})
	require.False(t, sess.IsUserAllowed("mallory"), "a user not already on the session must not be able to invite herself")
}

func TestGatewayAllowIsPerUser(t *testing.T) {
	gw := New("mm1", nil, nil, &fakeIngester{}, nil, nil, zerolog.Nop())
	for i := 0; i < perUserBurst; i++ {
		require.True(t, gw.allow("alice"))
	}
	require.False(t, gw.allow("alice"), "alice should have exhausted her burst")
	require.True(t, gw.allow("bob"), "bob has his own independent budget")
}
