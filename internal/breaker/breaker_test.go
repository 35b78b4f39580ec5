package breaker

import (
	"strings"
	"testing"
)

func TestCodeBlockStateTogglesOnFence(t *testing.T) {
	b := "hello\n```go\ncode\n```\nworld\n"
	if CodeBlockState(b, 0).Inside {
		t.Fatal("position 0 must not be inside a block")
	}
	openIdx := strings.Index(b, "```go")
	if !CodeBlockState(b, openIdx+6).Inside {
		t.Fatal("position right after the opening fence must be inside")
	}
	closeIdx := strings.LastIndex(b, "```")
	if CodeBlockState(b, closeIdx+3).Inside {
		t.Fatal("position right after the closing fence must not be inside")
	}
}

func TestCodeBlockStateOddCountIsInside(t *testing.T) {
	b := "```diff\n-a\n+b\n"
	info := CodeBlockState(b, len(b))
	if !info.Inside {
		t.Fatal("unterminated fence must report inside")
	}
	if info.Language != "diff" {
		t.Fatalf("expected language diff, got %q", info.Language)
	}
}

func TestFindLogicalBreakpointPrefersToolMarker(t *testing.T) {
	b := "some text\n  ↳ ✓ did a thing\nmore text here that keeps going\n"
	bp, ok := FindLogicalBreakpoint(b, 0, len(b))
	if !ok {
		t.Fatal("expected a breakpoint")
	}
	if bp.Type != BreakToolMarker {
		t.Fatalf("expected tool marker breakpoint, got %v", bp.Type)
	}
}

func TestFindLogicalBreakpointInsideCodeBlockOnlyFenceClose(t *testing.T) {
	b := "```go\nfunc main() {\n## not a heading, inside a block\n}\n```\nafter\n"
	fenceStart := strings.Index(b, "func")
	bp, ok := FindLogicalBreakpoint(b, fenceStart, len(b)-fenceStart)
	if !ok {
		t.Fatal("expected to find the closing fence")
	}
	if bp.Type != BreakCodeBlockEnd {
		t.Fatalf("expected code block end, got %v", bp.Type)
	}
	if CodeBlockState(b, bp.Position).Inside {
		t.Fatal("breakpoint must land outside the code block")
	}
}

func TestFindLogicalBreakpointNoCandidateInsideUnclosedBlock(t *testing.T) {
	b := "```diff\n-a\n+b\n+c\n"
	_, ok := FindLogicalBreakpoint(b, 8, len(b)-8)
	if ok {
		t.Fatal("expected no candidate for an unclosed block with no fence in range")
	}
}

func TestSplitNoSplitWhenUnderHard(t *testing.T) {
	b := "short buffer"
	r := Split(b, 100, 200, 0)
	if r.Split {
		t.Fatal("must not split when under both thresholds")
	}
	if r.Head != b {
		t.Fatalf("head must equal input, got %q", r.Head)
	}
}

func TestSplitExactlyAtSoftAndHard(t *testing.T) {
	soft, hard := 10, 20
	b := strings.Repeat("a", soft)
	r := Split(b, soft, hard, 0)
	if r.Split {
		t.Fatal("exactly-at-soft with no breakpoint candidate should not force a split beyond buffer bounds")
	}

	b2 := strings.Repeat("a", hard+1)
	r2 := Split(b2, soft, hard, 0)
	_ = r2 // length > hard forces an attempt; absent any newline, falls back to no-split (no candidate, no open block)
}

func TestSplitMovesWholeCodeBlock(t *testing.T) {
	prefix := "intro text\n"
	block := "```diff\n" + strings.Repeat("-line\n", 50)
	b := prefix + block
	r := Split(b, 20, 40, 0)
	if !r.Split || !r.WholeBlock {
		t.Fatalf("expected the unterminated block to move whole, got %+v", r)
	}
	if !strings.HasPrefix(r.Tail, "```diff") {
		t.Fatalf("continuation must start with the fence, got %q", r.Tail[:min(20, len(r.Tail))])
	}
	if strings.Contains(r.Head, "```") {
		t.Fatalf("head must not contain any part of the moved block, got %q", r.Head)
	}
}

func TestSplitRoundTripConcatenation(t *testing.T) {
	b := "paragraph one text that is reasonably long for testing purposes here.\n\nparagraph two continues on for a while to push past soft threshold boundaries.\n"
	r := Split(b, 40, 1000, 0)
	if !r.Split {
		t.Skip("no split candidate found for this fixture")
	}
	rejoined := strings.TrimRight(r.Head, "\n") + "\n\n" + strings.TrimLeft(r.Tail, "\n")
	if strings.TrimSpace(rejoined) != strings.TrimSpace(b) {
		t.Fatalf("round trip mismatch:\nhead=%q\ntail=%q\norig=%q", r.Head, r.Tail, b)
	}
}

func TestSplitIdempotentOnStableInput(t *testing.T) {
	b := "stable content under hard threshold"
	r1 := Split(b, 100, 200, 0)
	r2 := Split(r1.Head, 100, 200, 0)
	if r1.Split || r2.Split {
		t.Fatal("stable input under hard threshold must never split")
	}
	if r1.Head != r2.Head {
		t.Fatal("two consecutive flushes of stable input must be identical")
	}
}

func TestShouldFlushEarlyByLength(t *testing.T) {
	if !ShouldFlushEarly(strings.Repeat("a", 100), 100, 0) {
		t.Fatal("length exactly at soft threshold must flush")
	}
	if ShouldFlushEarly(strings.Repeat("a", 99), 100, 0) {
		t.Fatal("length under soft threshold must not flush")
	}
}

func TestShouldFlushEarlyByLineCount(t *testing.T) {
	b := strings.Repeat("x\n", 10)
	if !ShouldFlushEarly(b, 100000, 10) {
		t.Fatal("line count at max-lines must flush")
	}
}

func TestEndsAtBreakpointClassifiesTail(t *testing.T) {
	if got := EndsAtBreakpoint("prose\n  ↳ ✓ done\n"); got != TailToolMarker {
		t.Fatalf("expected TailToolMarker, got %v", got)
	}
	if got := EndsAtBreakpoint("```go\ncode\n```"); got != TailCodeBlockEnd {
		t.Fatalf("expected TailCodeBlockEnd, got %v", got)
	}
	if got := EndsAtBreakpoint("para one\n\n"); got != TailParagraph {
		t.Fatalf("expected TailParagraph, got %v", got)
	}
	if got := EndsAtBreakpoint("no boundary here"); got != TailNone {
		t.Fatalf("expected TailNone, got %v", got)
	}
}

func TestTruncateAddsVisibleSuffix(t *testing.T) {
	b := strings.Repeat("a", 100)
	out := Truncate(b, 50)
	if len(out) > 50 {
		t.Fatalf("truncated output must respect max length, got len=%d", len(out))
	}
	if !strings.Contains(out, "truncated") {
		t.Fatal("expected a visible truncation marker")
	}
}

func TestTruncateNoopUnderLimit(t *testing.T) {
	b := "short"
	if Truncate(b, 100) != b {
		t.Fatal("must not modify content under the limit")
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
