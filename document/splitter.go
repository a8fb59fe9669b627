package document

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RecursiveSeparators goes from paragraph breaks down to a hard
// character cut.
var RecursiveSeparators = []string{
	"\n\n", "\n",
	"。", "！", "？",
	". ", "! ", "? ",
	"；", "; ",
	"，", ", ",
	" ", "",
}

// Splitter cuts text into chunks of at most chunkSize runes that overlap
// by up to chunkOverlap runes. With the separator strategy a single piece
// longer than chunkSize becomes its own oversized chunk.
type Splitter struct {
	strategy   Strategy
	size       int
	overlap    int
	separator  string
	separators []string
}

func NewSplitter(strategy Strategy, chunkSize, chunkOverlap int, separator string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, chunkSize)
	}

	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidArgument, chunkOverlap, chunkSize)
	}

	switch strategy {
	case StrategyRecursive:
	case StrategySeparator:
		if separator == "" {
			separator = "\n"
		}
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", ErrInvalidArgument, strategy)
	}

	return &Splitter{
		strategy:   strategy,
		size:       chunkSize,
		overlap:    chunkOverlap,
		separator:  separator,
		separators: RecursiveSeparators,
	}, nil
}

func (s *Splitter) Strategy() Strategy {
	return s.strategy
}

// Split returns the chunks of text with Index and Overlap set.
//
// For the separator strategy nothing is trimmed, so the first chunk
// followed by every later chunk minus its Overlap prefix is exactly text.
// The recursive strategy trims surrounding whitespace from each chunk, and
// its Overlap counts only the runes still shared with the previous chunk.
func (s *Splitter) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	var spans []span
	switch s.strategy {
	case StrategySeparator:
		spans = s.merge(splitKeep(text, s.separator))
	default:
		spans = s.recursive(text, s.separators)
	}

	chunks := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, Chunk{
			Text:    sp.text,
			Index:   len(chunks),
			Overlap: sp.overlap,
		})
	}
	return chunks
}

type span struct {
	text    string
	overlap int
}

func (s *Splitter) recursive(text string, separators []string) []span {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var (
		out  []span
		good []string
	)

	flush := func() {
		if len(good) == 0 {
			return
		}
		out = append(out, trimSpans(s.merge(good))...)
		good = nil
	}

	for _, piece := range splitKeep(text, sep) {
		if utf8.RuneCountInString(piece) <= s.size {
			good = append(good, piece)
			continue
		}

		flush()

		if len(rest) == 0 {
			out = append(out, trimSpans([]span{{text: piece}})...)
			continue
		}
		out = append(out, s.recursive(piece, rest)...)
	}

	flush()
	return out
}

// merge packs consecutive pieces into chunks. When a chunk is emitted its
// trailing pieces, up to the overlap budget, open the next chunk.
func (s *Splitter) merge(pieces []string) []span {
	var (
		out     []span
		current []string
		lengths []int
		total   int
		carried int
	)

	emit := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, span{
			text:    strings.Join(current, ""),
			overlap: carried,
		})
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)

		if total+n > s.size && len(current) > 0 {
			emit()

			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= lengths[0]
				current = current[1:]
				lengths = lengths[1:]
			}
			carried = total
		}

		current = append(current, piece)
		lengths = append(lengths, n)
		total += n
	}

	emit()
	return out
}

func trimSpans(spans []span) []span {
	var prev string

	out := spans[:0]
	for _, sp := range spans {
		lead := len(sp.text) - len(strings.TrimLeftFunc(sp.text, unicode.IsSpace))
		trimmed := strings.TrimSpace(sp.text)
		if trimmed == "" {
			continue
		}

		carried := max(0, sp.overlap-utf8.RuneCountInString(sp.text[:lead]))
		sp.overlap = sharedPrefix(prev, trimmed, carried)
		sp.text = trimmed
		prev = trimmed
		out = append(out, sp)
	}
	return out
}

// sharedPrefix returns the longest n <= limit such that the first n runes
// of next are a suffix of prev.
func sharedPrefix(prev, next string, limit int) int {
	runes := []rune(next)
	for n := min(limit, len(runes)); n > 0; n-- {
		if strings.HasSuffix(prev, string(runes[:n])) {
			return n
		}
	}
	return 0
}

// splitKeep splits text after every occurrence of sep, keeping sep at
// the end of the preceding piece. An empty sep splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	var pieces []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}

		pieces = append(pieces, text[:i+len(sep)])
		text = text[i+len(sep):]
	}

	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}
