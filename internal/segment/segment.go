// Package segment packs text into bounded chunks that break only at sentence
// boundaries.
package segment

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is used when Split is called with a non-positive maximum.
const DefaultMaxLength = 200

// Chunk is one unit of text handed to the speech engine. Index fixes its
// playback position.
type Chunk struct {
	Index int
	Text  string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int { return utf8.RuneCountInString(c.Text) }

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Sentences splits text after every run of terminal punctuation. Units keep
// their surrounding whitespace so that joining them reproduces text exactly.
func Sentences(text string) []string {
	var units []string
	start := 0
	inTerminators := false
	for i, r := range text {
		if isTerminator(r) {
			inTerminators = true
			continue
		}
		if inTerminators {
			units = append(units, text[start:i])
			start = i
			inTerminators = false
		}
	}
	if start < len(text) {
		units = append(units, text[start:])
	}
	return units
}

// Split greedily packs sentence units into chunks of at most maxLength runes.
// A unit that alone exceeds maxLength becomes its own oversized chunk; it is
// never cut mid-sentence. Chunks are trimmed and empty chunks are dropped, so
// blank input yields no chunks.
func Split(text string, maxLength int) []Chunk {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var chunks []Chunk
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: trimmed})
		}
		current.Reset()
		currentLen = 0
	}

	for _, unit := range Sentences(text) {
		unitLen := utf8.RuneCountInString(unit)
		if currentLen+unitLen > maxLength {
			flush()
		}
		current.WriteString(unit)
		currentLen += unitLen
	}
	flush()
	return chunks
}

// Oversized returns the indices of chunks longer than maxLength.
func Oversized(chunks []Chunk, maxLength int) []int {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	var out []int
	for _, c := range chunks {
		if c.Len() > maxLength {
			out = append(out, c.Index)
		}
	}
	return out
}
