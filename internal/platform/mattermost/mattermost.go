// Package mattermost binds the Platform Port to a Mattermost team
// using the server's public REST client and websocket event stream.
// No mattermost/model type crosses into internal/platform; everything
// here is translated at the boundary.
package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/local/threadbridge/internal/config"
	"github.com/local/threadbridge/internal/platform"
)

// Limits mirrors Mattermost's default post-size constants; the server
// is configurable but these match the out-of-the-box values most
// deployments run with.
var Limits = platform.Limits{
	MaxLength:     16383,
	SoftThreshold: 8000,
	HardThreshold: 12000,
	MaxLines:      200,
}

// Port implements platform.Publisher, platform.Ingester and
// platform.Formatter over a single Mattermost team/channel binding.
type Port struct {
	cfg    config.PlatformConfig
	client *model.Client4
	ws     *model.WebSocketClient
	botID  string

	messages  chan platform.MessageEvent
	reactions chan platform.ReactionEvent

	log zerolog.Logger
}

// Dial authenticates against cfg.URL with cfg.Token and opens the
// websocket event stream.
func Dial(ctx context.Context, cfg config.PlatformConfig, log zerolog.Logger) (*Port, error) {
	client := model.NewAPIv4Client(cfg.URL)
	client.SetToken(cfg.Token)

	me, _, err := client.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("mattermost: get bot user: %w", err)
	}

	wsURL := strings.Replace(cfg.URL, "http", "ws", 1)
	ws, err := model.NewWebSocketClient4(wsURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("mattermost: dial websocket: %w", err)
	}

	p := &Port{
		cfg:       cfg,
		client:    client,
		ws:        ws,
		botID:     me.Id,
		messages:  make(chan platform.MessageEvent, 64),
		reactions: make(chan platform.ReactionEvent, 64),
		log:       log,
	}

	ws.Listen()
	go p.pump(ctx)

	return p, nil
}

// Port returns the bundled platform.Port for registration with the
// rest of the runtime.
func (p *Port) Port() platform.Port {
	return platform.Port{
		ID:        p.cfg.ID,
		Publisher: p,
		Ingester:  p,
		Formatter: p,
		Limits:    Limits,
	}
}

func (p *Port) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.ws.Close()
			close(p.messages)
			close(p.reactions)
			return
		case ev, ok := <-p.ws.EventChannel:
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

func (p *Port) handleEvent(ev *model.WebSocketEvent) {
	switch ev.EventType() {
	case model.WebsocketEventPosted:
		p.handlePosted(ev)
	case model.WebsocketEventReactionAdded:
		p.handleReaction(ev, platform.ReactionAdded)
	case model.WebsocketEventReactionRemoved:
		p.handleReaction(ev, platform.ReactionRemoved)
	}
}

func (p *Port) handlePosted(ev *model.WebSocketEvent) {
	raw, ok := ev.GetData()["post"].(string)
	if !ok {
		return
	}
	var post model.Post
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		p.log.Debug().Err(err).Msg("mattermost: malformed post payload")
		return
	}
	if post.UserId == p.botID {
		return
	}
	channelID, _ := ev.GetData()["channel_id"].(string)
	if p.cfg.ChannelID != "" && channelID != p.cfg.ChannelID {
		return
	}

	threadID := post.RootId
	if threadID == "" {
		threadID = post.Id
	}

	p.messages <- platform.MessageEvent{
		PostID:       post.Id,
		ThreadID:     threadID,
		ParentPostID: post.RootId,
		User:         post.UserId,
		Text:         post.Message,
		Files:        p.fileRefs(post.FileIds),
		IsMention:    strings.Contains(post.Message, "@"+p.cfg.BotName),
		IsBot:        false,
		Timestamp:    time.UnixMilli(post.CreateAt),
	}
}

func (p *Port) fileRefs(ids model.StringArray) []platform.FileRef {
	if len(ids) == 0 {
		return nil
	}
	out := make([]platform.FileRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, platform.FileRef{ID: id})
	}
	return out
}

func (p *Port) handleReaction(ev *model.WebSocketEvent, action platform.ReactionAction) {
	raw, ok := ev.GetData()["reaction"].(string)
	if !ok {
		return
	}
	var r model.Reaction
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		p.log.Debug().Err(err).Msg("mattermost: malformed reaction payload")
		return
	}
	if r.UserId == p.botID {
		return
	}
	p.reactions <- platform.ReactionEvent{
		PostID:    r.PostId,
		Emoji:     r.EmojiName,
		User:      r.UserId,
		Action:    action,
		Timestamp: time.UnixMilli(r.CreateAt),
	}
}

// --- platform.Ingester ---

func (p *Port) MessageEvents() <-chan platform.MessageEvent   { return p.messages }
func (p *Port) ReactionEvents() <-chan platform.ReactionEvent { return p.reactions }

func (p *Port) IsUserAllowed(user string) bool {
	if len(p.cfg.AllowedUsers) == 0 {
		return true
	}
	for _, u := range p.cfg.AllowedUsers {
		if u == user {
			return true
		}
	}
	return false
}

// --- platform.Publisher ---

func (p *Port) CreatePost(ctx context.Context, threadID, body string) (platform.Post, error) {
	post := &model.Post{ChannelId: p.cfg.ChannelID, RootId: rootOf(threadID), Message: body}
	created, _, err := p.client.CreatePost(ctx, post)
	if err != nil {
		return platform.Post{}, fmt.Errorf("mattermost: create post: %w", err)
	}
	return platform.Post{ID: created.Id, ThreadID: threadRoot(created)}, nil
}

func (p *Port) CreateInteractivePost(ctx context.Context, threadID, body string, initialReactions []string) (platform.Post, error) {
	post, err := p.CreatePost(ctx, threadID, body)
	if err != nil {
		return platform.Post{}, err
	}
	for _, emoji := range initialReactions {
		if err := p.AddReaction(ctx, post.ID, emoji); err != nil {
			p.log.Warn().Err(err).Str("emoji", emoji).Msg("mattermost: initial reaction failed")
		}
	}
	return post, nil
}

func (p *Port) UpdatePost(ctx context.Context, postID, body string) error {
	_, _, err := p.client.PatchPost(ctx, postID, &model.PostPatch{Message: &body})
	if err != nil {
		if isNotFound(err) {
			return platform.ErrPostGone
		}
		return fmt.Errorf("mattermost: update post: %w", err)
	}
	return nil
}

func (p *Port) DeletePost(ctx context.Context, postID string) error {
	_, err := p.client.DeletePost(ctx, postID)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("mattermost: delete post: %w", err)
	}
	return nil
}

func (p *Port) PinPost(ctx context.Context, postID string) error {
	_, err := p.client.PinPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("mattermost: pin post: %w", err)
	}
	return nil
}

func (p *Port) UnpinPost(ctx context.Context, postID string) error {
	_, err := p.client.UnpinPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("mattermost: unpin post: %w", err)
	}
	return nil
}

func (p *Port) AddReaction(ctx context.Context, postID, emoji string) error {
	r := &model.Reaction{UserId: p.botID, PostId: postID, EmojiName: emoji}
	_, _, err := p.client.SaveReaction(ctx, r)
	if err != nil {
		return fmt.Errorf("mattermost: add reaction: %w", err)
	}
	return nil
}

func (p *Port) RemoveReaction(ctx context.Context, postID, emoji string) error {
	_, err := p.client.DeleteReaction(ctx, &model.Reaction{UserId: p.botID, PostId: postID, EmojiName: emoji})
	if err != nil {
		return fmt.Errorf("mattermost: remove reaction: %w", err)
	}
	return nil
}

func (p *Port) SendTyping(ctx context.Context, threadID string) {
	p.ws.UserTyping(rootOf(threadID), "")
}

func (p *Port) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	data, _, err := p.client.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("mattermost: download file: %w", err)
	}
	return data, nil
}

// --- platform.Formatter ---

func (p *Port) Bold(s string) string          { return "**" + s + "**" }
func (p *Port) Italic(s string) string        { return "*" + s + "*" }
func (p *Port) Code(s string) string          { return "`" + s + "`" }
func (p *Port) CodeBlock(lang, s string) string {
	return "```" + lang + "\n" + s + "\n```"
}
func (p *Port) Strikethrough(s string) string { return "~~" + s + "~~" }
func (p *Port) Link(text, url string) string  { return fmt.Sprintf("[%s](%s)", text, url) }
func (p *Port) UserMention(userID string) string {
	return "@" + userID
}
func (p *Port) HorizontalRule() string { return "\n---\n" }
func (p *Port) Heading(level int, s string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + s
}

// MarkdownToNative is a passthrough: Mattermost already renders
// CommonMark-flavored markdown natively.
func (p *Port) MarkdownToNative(text string) string { return text }

func rootOf(threadID string) string {
	return threadID
}

func threadRoot(post *model.Post) string {
	if post.RootId != "" {
		return post.RootId
	}
	return post.Id
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var appErr *model.AppError
	if ok := asAppError(err, &appErr); ok {
		return appErr.StatusCode == 404
	}
	return false
}

func asAppError(err error, target **model.AppError) bool {
	ae, ok := err.(*model.AppError)
	if !ok {
		return false
	}
	*target = ae
	return true
}
