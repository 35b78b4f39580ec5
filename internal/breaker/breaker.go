// Package breaker implements the Content Breaker: pure functions over
// a growing text buffer that decide where to cut a new post while
// respecting code-block nesting, headings, tool markers, paragraph
// breaks, and platform length thresholds. Nothing in this package
// holds state or does I/O, so it is a leaf module, portable and
// unit-testable in isolation.
package breaker

import (
	"regexp"
	"strings"
)

// BreakpointType ranks the kinds of place a post may be safely split,
// highest priority first.
type BreakpointType int

const (
	BreakToolMarker BreakpointType = iota
	BreakHeading
	BreakCodeBlockEnd
	BreakParagraph
	BreakLineBreak
)

// Breakpoint is a candidate cut position found by FindLogicalBreakpoint.
type Breakpoint struct {
	Position int
	Type     BreakpointType
}

// CodeBlockInfo is the result of CodeBlockState.
type CodeBlockInfo struct {
	Inside       bool
	Language     string
	OpenPosition int // -1 when not inside a block
}

// CodeBlockState walks B[0..p] counting fenced-code markers
// (```, at line start after optional leading whitespace); an odd
// count means p sits inside an open block.
func CodeBlockState(b string, p int) CodeBlockInfo {
	if p < 0 {
		p = 0
	}
	if p > len(b) {
		p = len(b)
	}
	s := b[:p]

	inside := false
	language := ""
	openPos := -1
	offset := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			if !inside {
				inside = true
				openPos = offset
				language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			} else {
				inside = false
				openPos = -1
				language = ""
			}
		}
		offset += len(line) + 1
	}
	return CodeBlockInfo{Inside: inside, Language: language, OpenPosition: openPos}
}

var toolMarkerRE = regexp.MustCompile(`(?m)^  ↳ (✓|❌).*$`)
var headingRE = regexp.MustCompile(`(?m)^(##|###) .*$`)

// FindLogicalBreakpoint searches B[start, start+lookahead] for the
// highest-priority safe cut point. When B is inside a code block at
// start, only a code-fence close is eligible; if none exists in the
// window, it reports no candidate.
func FindLogicalBreakpoint(b string, start, lookahead int) (Breakpoint, bool) {
	if start < 0 {
		start = 0
	}
	if start > len(b) {
		return Breakpoint{}, false
	}
	end := len(b)
	if lookahead >= 0 && start+lookahead < end {
		end = start + lookahead
	}
	if end < start {
		end = start
	}

	if CodeBlockState(b, start).Inside {
		if pos, ok := lastCodeFenceClose(b, start, end); ok {
			return Breakpoint{Position: pos, Type: BreakCodeBlockEnd}, true
		}
		return Breakpoint{}, false
	}

	candidates := []struct {
		find func() (int, bool)
		typ  BreakpointType
	}{
		{func() (int, bool) { return lastRegexEnd(toolMarkerRE, b, start, end) }, BreakToolMarker},
		{func() (int, bool) { return lastRegexStart(headingRE, b, start, end) }, BreakHeading},
		{func() (int, bool) { return lastCodeFenceClose(b, start, end) }, BreakCodeBlockEnd},
		{func() (int, bool) { return lastSubstring(b, start, end, "\n\n") }, BreakParagraph},
		{func() (int, bool) { return lastSubstring(b, start, end, "\n") }, BreakLineBreak},
	}

	for _, c := range candidates {
		pos, ok := c.find()
		if !ok {
			continue
		}
		if CodeBlockState(b, pos).Inside {
			continue
		}
		return Breakpoint{Position: pos, Type: c.typ}, true
	}
	return Breakpoint{}, false
}

// lastRegexEnd returns the position right after the last match's
// line (skipping the trailing newline when present), within [start,end].
func lastRegexEnd(re *regexp.Regexp, b string, start, end int) (int, bool) {
	locs := re.FindAllStringIndex(b[start:end], -1)
	if len(locs) == 0 {
		return 0, false
	}
	last := locs[len(locs)-1]
	pos := start + last[1]
	if pos < len(b) && b[pos] == '\n' {
		pos++
	}
	return pos, true
}

// lastRegexStart returns the start offset of the last match within [start,end].
func lastRegexStart(re *regexp.Regexp, b string, start, end int) (int, bool) {
	locs := re.FindAllStringIndex(b[start:end], -1)
	if len(locs) == 0 {
		return 0, false
	}
	last := locs[len(locs)-1]
	return start + last[0], true
}

// lastSubstring returns the offset right after the last occurrence of
// sep within [start,end].
func lastSubstring(b string, start, end int, sep string) (int, bool) {
	idx := strings.LastIndex(b[start:end], sep)
	if idx < 0 {
		return 0, false
	}
	return start + idx + len(sep), true
}

// lastCodeFenceClose scans B from the beginning (fence state depends
// on the whole prefix) and returns the last close-transition position
// that falls within [start,end].
func lastCodeFenceClose(b string, start, end int) (int, bool) {
	inside := false
	offset := 0
	found := -1
	for _, line := range strings.Split(b[:end], "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		lineEnd := offset + len(line)
		if strings.HasPrefix(trimmed, "```") {
			if inside {
				inside = false
				pos := lineEnd
				if pos < len(b) && b[pos] == '\n' {
					pos++
				}
				if pos >= start && pos <= end {
					found = pos
				}
			} else {
				inside = true
			}
		}
		offset += len(line) + 1
	}
	if found < 0 {
		return 0, false
	}
	return found, true
}

// ShouldFlushEarly reports whether B has grown enough to warrant a
// flush before a natural turn boundary: either the soft length
// threshold or the max-lines threshold has been crossed.
func ShouldFlushEarly(b string, softThreshold, maxLines int) bool {
	if len(b) >= softThreshold {
		return true
	}
	if maxLines > 0 && strings.Count(b, "\n")+1 >= maxLines {
		return true
	}
	return false
}

// TailKind classifies how B's tail ends, for callers deciding whether
// a pending flush would straddle a construct.
type TailKind int

const (
	TailNone TailKind = iota
	TailToolMarker
	TailCodeBlockEnd
	TailParagraph
)

// EndsAtBreakpoint classifies B's tail.
func EndsAtBreakpoint(b string) TailKind {
	if toolMarkerRE.MatchString(b) {
		locs := toolMarkerRE.FindAllStringIndex(b, -1)
		last := locs[len(locs)-1]
		tail := b[last[1]:]
		if strings.TrimRight(tail, "\n") == "" {
			return TailToolMarker
		}
	}
	trimmed := strings.TrimRight(b, "\n")
	if strings.HasSuffix(trimmed, "```") && !CodeBlockState(b, len(b)).Inside {
		return TailCodeBlockEnd
	}
	if strings.HasSuffix(b, "\n\n") {
		return TailParagraph
	}
	return TailNone
}

// SplitResult is the outcome of Split, the break algorithm: given the
// buffer B (already C++D concatenated by the caller) and platform
// thresholds, it decides whether and where to cut. Split is false when
// B should simply be written/updated whole (no split needed or
// possible yet).
type SplitResult struct {
	Head       string // goes in the current/new post
	Tail       string // pending-content for the next post
	Split      bool
	WholeBlock bool // true when an un-splittable open code block was pushed whole to Tail
}

// Split implements steps 3 of the break algorithm: decide where (if
// anywhere) to cut B given soft/hard thresholds. Callers handle step 2
// (fresh-post truncation) and step 4 (in-place update) themselves.
func Split(b string, soft, hard, maxLines int) SplitResult {
	if len(b) <= hard && !ShouldFlushEarly(b, soft, maxLines) {
		return SplitResult{Head: b, Split: false}
	}

	var bp Breakpoint
	var ok bool
	if len(b) > hard {
		winStart := int(float64(hard) * 0.7)
		bp, ok = FindLogicalBreakpoint(b, winStart, hard-winStart)
	} else {
		bp, ok = FindLogicalBreakpoint(b, soft, len(b)-soft)
	}

	if !ok {
		// Desired split position is inside a code block with no
		// close in range: move the whole block to the next post by
		// cutting at the last newline before the opening fence.
		cbs := CodeBlockState(b, len(b))
		if cbs.Inside && cbs.OpenPosition > 0 {
			cut := cbs.OpenPosition
			head := strings.TrimRight(b[:cut], "\n")
			tail := strings.TrimLeft(b[cut:], "\n")
			return SplitResult{Head: head, Tail: tail, Split: true, WholeBlock: true}
		}
		// No candidate and nothing to push whole: leave B intact.
		return SplitResult{Head: b, Split: false}
	}

	head := strings.TrimRight(b[:bp.Position], "\n")
	tail := strings.TrimLeft(b[bp.Position:], "\n")
	return SplitResult{Head: head, Tail: tail, Split: true}
}

// Truncate enforces maxLength on a fresh post (step 2), appending a
// visible truncation marker when content is cut.
func Truncate(b string, maxLength int) string {
	if len(b) <= maxLength {
		return b
	}
	suffix := "\n\n*… (truncated)*"
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return b[:cut] + suffix
}
