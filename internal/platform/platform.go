// Package platform defines the Platform Port: the narrow contract the
// session runtime uses to post, edit, delete, pin and react to
// messages on a chat thread, and to receive message/reaction events.
// Concrete bindings (internal/platform/mattermost,
// internal/platform/slack) implement it; no ecosystem-specific types
// from either binding leak past this package into the session
// runtime.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrPostGone is returned by Update when the underlying message has
// been deleted out from under the caller. It is not an error for
// Delete, which is idempotent.
var ErrPostGone = errors.New("platform: post is gone")

// Post is the minimal identity of a message the port created.
type Post struct {
	ID       string
	ThreadID string
}

// Publisher is the write-side capability set of a platform.
type Publisher interface {
	// CreatePost creates a new message in the thread.
	CreatePost(ctx context.Context, threadID, body string) (Post, error)

	// CreateInteractivePost creates a message and attaches the given
	// initial reactions in one call, so the reactions land on the
	// real message rather than racing a delete-then-recreate on some
	// platforms.
	CreateInteractivePost(ctx context.Context, threadID, body string, initialReactions []string) (Post, error)

	// UpdatePost replaces a post's body. Returns ErrPostGone if the
	// message was deleted.
	UpdatePost(ctx context.Context, postID, body string) error

	// DeletePost removes a post. Idempotent: deleting an
	// already-gone post is not an error.
	DeletePost(ctx context.Context, postID string) error

	PinPost(ctx context.Context, postID string) error
	UnpinPost(ctx context.Context, postID string) error

	// AddReaction/RemoveReaction are idempotent.
	AddReaction(ctx context.Context, postID, emoji string) error
	RemoveReaction(ctx context.Context, postID, emoji string) error

	SendTyping(ctx context.Context, threadID string)

	// DownloadFile may return ErrUnsupported on platforms without
	// file transfer.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// ErrUnsupported is returned by capabilities a platform binding
// doesn't implement (e.g. DownloadFile on a text-only transport).
var ErrUnsupported = errors.New("platform: operation not supported")

// MessageEvent is an inbound chat message.
type MessageEvent struct {
	PostID        string
	ThreadID      string
	ParentPostID  string // empty if this is a thread root
	User          string
	Text          string
	Files         []FileRef
	IsMention     bool
	IsBot         bool
	Timestamp     time.Time
}

// FileRef is an attachment reference carried on a MessageEvent.
type FileRef struct {
	ID       string
	Name     string
	MimeType string
}

// ReactionAction distinguishes a reaction being added from removed.
type ReactionAction int

const (
	ReactionAdded ReactionAction = iota
	ReactionRemoved
)

// ReactionEvent is an inbound reaction change on some post.
type ReactionEvent struct {
	PostID   string
	ThreadID string
	Emoji    string
	User     string
	Action   ReactionAction
	Timestamp time.Time
}

// Ingester is the read-side capability set of a platform: it streams
// message and reaction events until ctx is cancelled or the
// connection ends.
type Ingester interface {
	MessageEvents() <-chan MessageEvent
	ReactionEvents() <-chan ReactionEvent

	// IsUserAllowed enforces the platform-wide ACL (distinct from a
	// session's own allowed-users superset).
	IsUserAllowed(user string) bool
}

// Limits describes the platform's size/shape constants that drive the
// Content Breaker.
type Limits struct {
	MaxLength     int
	SoftThreshold int
	HardThreshold int
	MaxLines      int
}

// Formatter renders platform-native markup. Heading levels are 1-based.
type Formatter interface {
	Bold(s string) string
	Italic(s string) string
	Code(s string) string
	CodeBlock(lang, s string) string
	Link(text, url string) string
	Strikethrough(s string) string
	UserMention(userID string) string
	HorizontalRule() string
	Heading(level int, s string) string

	// MarkdownToNative lowers CommonMark-ish markdown (as produced by
	// the assistant process) into the platform's native dialect.
	MarkdownToNative(text string) string
}

// Port bundles everything a single configured platform contributes.
// A concrete binding's constructor returns one of these, wired
// together with whatever transport client the binding needs.
type Port struct {
	ID        string
	Publisher Publisher
	Ingester  Ingester
	Formatter Formatter
	Limits    Limits
}
