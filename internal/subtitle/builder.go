package subtitle

import (
	"strings"

	"videocutter/internal/transcriber"
)

// Builder groups a time-ordered token stream into subtitle entries. A line is closed when
// adding a token would exceed MaxDuration, when the silence before it exceeds MaxGap, or when
// the text would exceed MaxChars.
type Builder struct {
	MaxDuration float64
	MaxGap      float64
	MaxChars    int

	pending []transcriber.Token
	chars   int
}

// NewBuilder creates a builder with subtitle-friendly limits
func NewBuilder() *Builder {
	return &Builder{
		MaxDuration: 5,
		MaxGap:      1,
		MaxChars:    84,
	}
}

// Add appends a token and returns the entry it closed, if any
func (b *Builder) Add(token transcriber.Token) (Entry, bool) {
	var closed Entry
	var ok bool

	if len(b.pending) > 0 && b.breaksBefore(token) {
		closed, ok = b.Flush()
	}

	b.pending = append(b.pending, token)
	b.chars += len(token.Text)
	return closed, ok
}

// Flush closes the current line
func (b *Builder) Flush() (Entry, bool) {
	if len(b.pending) == 0 {
		return Entry{}, false
	}

	var text strings.Builder
	for _, t := range b.pending {
		text.WriteString(t.Text)
	}

	entry := Entry{
		Start: b.pending[0].Start,
		End:   b.pending[len(b.pending)-1].End,
		Text:  strings.Join(strings.Fields(text.String()), " "),
	}

	b.pending = b.pending[:0]
	b.chars = 0
	return entry, entry.Validate() == nil
}

func (b *Builder) breaksBefore(token transcriber.Token) bool {
	first := b.pending[0]
	last := b.pending[len(b.pending)-1]

	if b.MaxGap > 0 && token.Start-last.End > b.MaxGap {
		return true
	}
	if b.MaxDuration > 0 && token.End-first.Start > b.MaxDuration {
		return true
	}
	if b.MaxChars > 0 && b.chars+len(token.Text) > b.MaxChars {
		return true
	}
	return false
}

// Build groups tokens into entries in one pass
func Build(tokens []transcriber.Token) []Entry {
	b := NewBuilder()
	entries := []Entry{}
	for _, t := range tokens {
		if e, ok := b.Add(t); ok {
			entries = append(entries, e)
		}
	}
	if e, ok := b.Flush(); ok {
		entries = append(entries, e)
	}
	return entries
}
