// Package hashing provides a local embedding model based on signed
// feature hashing. It needs no weights and is fully deterministic.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const DefaultDimension = 384

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

type Model struct {
	dimension int
}

func New(dimension int) *Model {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &Model{dimension: dimension}
}

func (m *Model) Name() string {
	return "hashing-" + strconv.Itoa(m.dimension)
}

func (m *Model) Dimension() int {
	return m.dimension
}

func (m *Model) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out[i] = m.encode(text)
	}
	return out, nil
}

func (m *Model) encode(text string) []float32 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// symbols only: hash the whole text as one feature
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			tokens = []string{trimmed}
		}
	}

	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}

	// fixed order keeps float sums bit-identical across calls
	keys := make([]string, 0, len(counts))
	for tok := range counts {
		keys = append(keys, tok)
	}
	sort.Strings(keys)

	vec := make([]float32, m.dimension)
	for _, tok := range keys {
		n := counts[tok]
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		weight := float32(1 + math.Log(float64(n)))
		if sum>>63 == 1 {
			weight = -weight
		}

		vec[sum%uint64(m.dimension)] += weight
	}
	return vec
}

// Tokenize lowercases text and splits it into word and number tokens.
// Runs of Han characters become overlapping character bigrams.
func Tokenize(text string) []string {
	var tokens []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens = append(tokens, splitHan(tok)...)
	}
	return tokens
}

func splitHan(tok string) []string {
	runes := []rune(tok)

	var (
		out  []string
		han  []rune
		rest []rune
	)

	flushHan := func() {
		switch len(han) {
		case 0:
		case 1:
			out = append(out, string(han))
		default:
			for i := 0; i+1 < len(han); i++ {
				out = append(out, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}

	flushRest := func() {
		if len(rest) > 0 {
			out = append(out, string(rest))
			rest = rest[:0]
		}
	}

	for _, r := range runes {
		if unicode.Is(unicode.Han, r) {
			flushRest()
			han = append(han, r)
			continue
		}

		flushHan()
		rest = append(rest, r)
	}

	flushHan()
	flushRest()
	return out
}
