package stream

import (
	"regexp"
	"strings"
)

// Narrative providers may frame internal reasoning in <think> or
// <thinking> delimiter pairs. Reasoning is never displayable; the scanner
// removes it incrementally so correctness does not depend on a delimiter
// arriving inside a single chunk.

var (
	reasoningOpeners = []string{"<think>", "<thinking>"}
	reasoningClosers = []string{"</think>", "</thinking>"}

	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// ReasoningScanner is a two-state (outside/inside) incremental scanner.
// Feed it chunks in arrival order; it returns only displayable text and
// withholds the longest ambiguous delimiter prefix until the next chunk
// disambiguates it.
type ReasoningScanner struct {
	pending string
	inside  bool
}

func NewReasoningScanner() *ReasoningScanner {
	return &ReasoningScanner{}
}

// InReasoning reports whether an opening delimiter is still unclosed:
// the narrative is "still reasoning" until a closer or stream end.
func (s *ReasoningScanner) InReasoning() bool {
	return s.inside
}

// Feed consumes the next chunk and returns its displayable part.
func (s *ReasoningScanner) Feed(chunk string) string {
	s.pending += chunk
	var out strings.Builder

	for {
		if s.inside {
			idx, width := findFirstDelimiter(s.pending, reasoningClosers)
			if idx < 0 {
				s.pending = s.pending[len(s.pending)-suffixHeld(s.pending, reasoningClosers):]
				return out.String()
			}
			s.pending = s.pending[idx+width:]
			s.inside = false
			continue
		}

		idx, width := findFirstDelimiter(s.pending, reasoningOpeners)
		if idx < 0 {
			held := suffixHeld(s.pending, reasoningOpeners)
			out.WriteString(s.pending[:len(s.pending)-held])
			s.pending = s.pending[len(s.pending)-held:]
			return out.String()
		}
		out.WriteString(s.pending[:idx])
		s.pending = s.pending[idx+width:]
		s.inside = true
	}
}

// Flush ends the stream. Text held back as a possible delimiter prefix is
// returned if the scanner was outside a block; an unclosed block's
// content is dropped entirely.
func (s *ReasoningScanner) Flush() string {
	held := s.pending
	s.pending = ""
	if s.inside {
		return ""
	}
	return held
}

// StripReasoning removes every reasoning block from text (including an
// unclosed trailing block), collapses runs of 3+ newlines, and trims.
// Stripping already-stripped text is a no-op.
func StripReasoning(text string) string {
	scanner := NewReasoningScanner()
	display := scanner.Feed(text) + scanner.Flush()
	display = excessNewlines.ReplaceAllString(display, "\n\n")
	return strings.TrimSpace(display)
}

// findFirstDelimiter locates the earliest complete delimiter, returning
// its index and width, or (-1, 0).
func findFirstDelimiter(text string, delimiters []string) (int, int) {
	first, width := -1, 0
	for _, d := range delimiters {
		idx := strings.Index(text, d)
		if idx < 0 {
			continue
		}
		if first < 0 || idx < first {
			first, width = idx, len(d)
		}
	}
	return first, width
}

// suffixHeld returns how many trailing bytes of text form a proper prefix
// of some delimiter and must wait for the next chunk.
func suffixHeld(text string, delimiters []string) int {
	max := 0
	for _, d := range delimiters {
		if n := len(d) - 1; n > max {
			max = n
		}
	}
	if max > len(text) {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		tail := text[len(text)-k:]
		for _, d := range delimiters {
			if strings.HasPrefix(d, tail) {
				return k
			}
		}
	}
	return 0
}
