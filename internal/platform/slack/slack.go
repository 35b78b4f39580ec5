// Package slack binds the Platform Port to a Slack workspace via the
// Events API over Socket Mode, so the deployment needs no public
// ingress.
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/local/threadbridge/internal/config"
	"github.com/local/threadbridge/internal/platform"
)

// Limits mirrors Slack's message size constants.
var Limits = platform.Limits{
	MaxLength:     40000,
	SoftThreshold: 20000,
	HardThreshold: 30000,
	MaxLines:      200,
}

// Port implements the Platform Port over a single Slack app/channel
// binding.
type Port struct {
	cfg    config.PlatformConfig
	api    *slack.Client
	client *socketmode.Client
	botID  string

	messages  chan platform.MessageEvent
	reactions chan platform.ReactionEvent

	log zerolog.Logger
}

// Dial authenticates with cfg.BotToken/cfg.AppToken and starts the
// Socket Mode event loop.
func Dial(ctx context.Context, cfg config.PlatformConfig, log zerolog.Logger) (*Port, error) {
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	client := socketmode.New(api)

	p := &Port{
		cfg:       cfg,
		api:       api,
		client:    client,
		botID:     auth.UserID,
		messages:  make(chan platform.MessageEvent, 64),
		reactions: make(chan platform.ReactionEvent, 64),
		log:       log,
	}

	go p.runEventLoop(ctx)
	go func() {
		if err := client.RunContext(ctx); err != nil {
			log.Error().Err(err).Msg("slack: socket mode run exited")
		}
	}()

	return p, nil
}

func (p *Port) Port() platform.Port {
	return platform.Port{
		ID:        p.cfg.ID,
		Publisher: p,
		Ingester:  p,
		Formatter: p,
		Limits:    Limits,
	}
}

func (p *Port) runEventLoop(ctx context.Context) {
	defer close(p.messages)
	defer close(p.reactions)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-p.client.Events:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *Port) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	payload, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	p.client.Ack(*evt.Request)

	switch inner := payload.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		p.handleMessage(inner)
	case *slackevents.ReactionAddedEvent:
		p.handleReaction(inner.Item.Timestamp, inner.Reaction, inner.User, platform.ReactionAdded)
	case *slackevents.ReactionRemovedEvent:
		p.handleReaction(inner.Item.Timestamp, inner.Reaction, inner.User, platform.ReactionRemoved)
	}
}

func (p *Port) handleMessage(ev *slackevents.MessageEvent) {
	if ev.User == p.botID || ev.BotID != "" {
		return
	}
	if p.cfg.ChannelID != "" && ev.Channel != p.cfg.ChannelID {
		return
	}
	threadID := ev.ThreadTimeStamp
	if threadID == "" {
		threadID = ev.TimeStamp
	}
	p.messages <- platform.MessageEvent{
		PostID:       ev.TimeStamp,
		ThreadID:     threadID,
		ParentPostID: ev.ThreadTimeStamp,
		User:         ev.User,
		Text:         ev.Text,
		IsMention:    strings.Contains(ev.Text, "<@"+p.botID+">"),
		IsBot:        false,
	}
}

func (p *Port) handleReaction(itemTimestamp, emoji, user string, action platform.ReactionAction) {
	if user == p.botID {
		return
	}
	p.reactions <- platform.ReactionEvent{
		PostID: itemTimestamp,
		Emoji:  emoji,
		User:   user,
		Action: action,
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
	_, ts, err := p.api.PostMessageContext(ctx, p.cfg.ChannelID, slack.MsgOptionText(body, false), slack.MsgOptionTS(threadID))
	if err != nil {
		return platform.Post{}, fmt.Errorf("slack: create post: %w", err)
	}
	root := threadID
	if root == "" {
		root = ts
	}
	return platform.Post{ID: ts, ThreadID: root}, nil
}

func (p *Port) CreateInteractivePost(ctx context.Context, threadID, body string, initialReactions []string) (platform.Post, error) {
	post, err := p.CreatePost(ctx, threadID, body)
	if err != nil {
		return platform.Post{}, err
	}
	for _, emoji := range initialReactions {
		if err := p.AddReaction(ctx, post.ID, emoji); err != nil {
			p.log.Warn().Err(err).Str("emoji", emoji).Msg("slack: initial reaction failed")
		}
	}
	return post, nil
}

func (p *Port) UpdatePost(ctx context.Context, postID, body string) error {
	_, _, _, err := p.api.UpdateMessageContext(ctx, p.cfg.ChannelID, postID, slack.MsgOptionText(body, false))
	if err != nil {
		if strings.Contains(err.Error(), "message_not_found") {
			return platform.ErrPostGone
		}
		return fmt.Errorf("slack: update post: %w", err)
	}
	return nil
}

func (p *Port) DeletePost(ctx context.Context, postID string) error {
	_, _, err := p.api.DeleteMessageContext(ctx, p.cfg.ChannelID, postID)
	if err != nil && !strings.Contains(err.Error(), "message_not_found") {
		return fmt.Errorf("slack: delete post: %w", err)
	}
	return nil
}

func (p *Port) PinPost(ctx context.Context, postID string) error {
	if err := p.api.AddPinContext(ctx, p.cfg.ChannelID, slack.NewRefToMessage(p.cfg.ChannelID, postID)); err != nil {
		return fmt.Errorf("slack: pin post: %w", err)
	}
	return nil
}

func (p *Port) UnpinPost(ctx context.Context, postID string) error {
	if err := p.api.RemovePinContext(ctx, p.cfg.ChannelID, slack.NewRefToMessage(p.cfg.ChannelID, postID)); err != nil {
		return fmt.Errorf("slack: unpin post: %w", err)
	}
	return nil
}

func (p *Port) AddReaction(ctx context.Context, postID, emoji string) error {
	if err := p.api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(p.cfg.ChannelID, postID)); err != nil {
		return fmt.Errorf("slack: add reaction: %w", err)
	}
	return nil
}

func (p *Port) RemoveReaction(ctx context.Context, postID, emoji string) error {
	if err := p.api.RemoveReactionContext(ctx, emoji, slack.NewRefToMessage(p.cfg.ChannelID, postID)); err != nil {
		return fmt.Errorf("slack: remove reaction: %w", err)
	}
	return nil
}

func (p *Port) SendTyping(ctx context.Context, threadID string) {
	// The Events API has no typing indicator; Socket Mode clients
	// conventionally skip this rather than faking it with a message.
}

func (p *Port) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, platform.ErrUnsupported
}

// --- platform.Formatter ---

func (p *Port) Bold(s string) string   { return "*" + s + "*" }
func (p *Port) Italic(s string) string { return "_" + s + "_" }
func (p *Port) Code(s string) string   { return "`" + s + "`" }
func (p *Port) CodeBlock(lang, s string) string {
	return "```" + s + "```"
}
func (p *Port) Strikethrough(s string) string { return "~" + s + "~" }
func (p *Port) Link(text, url string) string  { return fmt.Sprintf("<%s|%s>", url, text) }
func (p *Port) UserMention(userID string) string {
	return "<@" + userID + ">"
}
func (p *Port) HorizontalRule() string { return "\n---\n" }
func (p *Port) Heading(level int, s string) string {
	return p.Bold(s)
}

// markdownParser parses the CommonMark the assistant process emits so
// MarkdownToNative can walk the AST into Slack's mrkdwn dialect, which
// diverges enough from CommonMark (single-asterisk bold, no heading
// syntax, no fenced-code language tag) that textual find/replace
// misses nested cases a real parse catches for free.
var markdownParser = goldmark.New().Parser()

// MarkdownToNative lowers CommonMark (as produced by the assistant
// process) to Slack's mrkdwn dialect.
func (p *Port) MarkdownToNative(text string) string {
	source := []byte(text)
	doc := markdownParser.Parse(gmtext.NewReader(source))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				buf.WriteString("*")
			} else {
				buf.WriteString("*\n")
			}
			return ast.WalkContinue, nil
		case *ast.Emphasis:
			marker := "_"
			if node.Level == 2 {
				marker = "*"
			}
			buf.WriteString(marker)
			return ast.WalkContinue, nil
		case *ast.CodeSpan:
			buf.WriteString("`")
			return ast.WalkContinue, nil
		case *ast.FencedCodeBlock:
			if entering {
				buf.WriteString("```\n")
				for i := 0; i < node.Lines().Len(); i++ {
					line := node.Lines().At(i)
					buf.Write(line.Value(source))
				}
				buf.WriteString("```\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeBlock:
			if entering {
				buf.WriteString("```\n")
				for i := 0; i < node.Lines().Len(); i++ {
					line := node.Lines().At(i)
					buf.Write(line.Value(source))
				}
				buf.WriteString("```\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.Link:
			if entering {
				buf.WriteString("<" + string(node.Destination) + "|")
			} else {
				buf.WriteString(">")
			}
			return ast.WalkContinue, nil
		case *ast.ListItem:
			if entering {
				buf.WriteString("• ")
			} else {
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		case *ast.ThematicBreak:
			if entering {
				buf.WriteString("\n---\n")
			}
			return ast.WalkContinue, nil
		case *ast.Paragraph, *ast.TextBlock:
			if !entering {
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteString("\n")
				}
			}
			return ast.WalkContinue, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(buf.String(), "\n")
}
