package transcriber

import "fmt"

// Token is a recognised text unit positioned on the absolute timeline, in seconds
type Token struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Validate checks if the Token has valid values
func (t *Token) Validate() error {
	if t.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if t.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}

	if t.End < t.Start {
		return fmt.Errorf("end must not be before start")
	}

	return nil
}

// absoluteTokens rebases every token of every segment onto the absolute timeline
func absoluteTokens(chunkStart float64, segments []Segment) []Token {
	var tokens []Token
	for _, seg := range segments {
		for _, tt := range seg.Tokens {
			tokens = append(tokens, Token{
				Text:  tt.Text,
				Start: chunkStart + tt.T0,
				End:   chunkStart + tt.T1,
			})
		}
	}
	return tokens
}
