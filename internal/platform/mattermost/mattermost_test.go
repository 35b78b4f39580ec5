package mattermost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatterBasics(t *testing.T) {
	p := &Port{}
	require.Equal(t, "**bold**", p.Bold("bold"))
	require.Equal(t, "*italic*", p.Italic("italic"))
	require.Equal(t, "`code`", p.Code("code"))
	require.Equal(t, "~~gone~~", p.Strikethrough("gone"))
	require.Equal(t, "[text](http://x)", p.Link("text", "http://x"))
	require.Equal(t, "@alice", p.UserMention("alice"))
}

func TestCodeBlockIncludesLanguageTag(t *testing.T) {
	p := &Port{}
	require.Equal(t, "```go\nfmt.Println()\n```", p.CodeBlock("go", "fmt.Println()"))
}

func TestHeadingClampsLevel(t *testing.T) {
	p := &Port{}
	require.Equal(t, "# top", p.Heading(0, "top"))
	require.Equal(t, "###### deep", p.Heading(9, "deep"))
	require.Equal(t, "### mid", p.Heading(3, "mid"))
}

func TestMarkdownToNativeIsPassthrough(t *testing.T) {
	p := &Port{}
	in := "**bold** and # heading"
	require.Equal(t, in, p.MarkdownToNative(in))
}
