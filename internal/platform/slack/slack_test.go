package slack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownToNativeBoldAndItalic(t *testing.T) {
	p := &Port{}
	require.Equal(t, "this is *bold* and _italic_", p.MarkdownToNative("this is **bold** and *italic*"))
}

func TestMarkdownToNativeHeadingBecomesBold(t *testing.T) {
	p := &Port{}
	out := p.MarkdownToNative("# Title\n\nbody text")
	require.Equal(t, "*Title*\nbody text", out)
}

func TestMarkdownToNativeFencedCodeBlockDropsLanguageTag(t *testing.T) {
	p := &Port{}
	out := p.MarkdownToNative("```go\nfmt.Println(\"hi\")\n```")
	require.Equal(t, "```\nfmt.Println(\"hi\")\n```", out)
}

func TestMarkdownToNativeInlineCode(t *testing.T) {
	p := &Port{}
	require.Equal(t, "run `go test` now", p.MarkdownToNative("run `go test` now"))
}

func TestMarkdownToNativeLink(t *testing.T) {
	p := &Port{}
	require.Equal(t, "see <https://example.com|the docs>", p.MarkdownToNative("see [the docs](https://example.com)"))
}

func TestMarkdownToNativeListItems(t *testing.T) {
	p := &Port{}
	out := p.MarkdownToNative("- one\n- two\n")
	require.Contains(t, out, "• one")
	require.Contains(t, out, "• two")
}

func TestCodeBlockIgnoresLanguageTag(t *testing.T) {
	p := &Port{}
	require.Equal(t, "```fmt.Println()```", p.CodeBlock("go", "fmt.Println()"))
}

func TestFormatterBasics(t *testing.T) {
	p := &Port{}
	require.Equal(t, "*bold*", p.Bold("bold"))
	require.Equal(t, "_italic_", p.Italic("italic"))
	require.Equal(t, "`code`", p.Code("code"))
	require.Equal(t, "<http://x|text>", p.Link("text", "http://x"))
	require.Equal(t, "<@U123>", p.UserMention("U123"))
}
