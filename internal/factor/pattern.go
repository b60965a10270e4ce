package factor

import (
	"fmt"
	"strings"
)

// Direction is a single motion token.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

var directionCodes = map[Direction]byte{Up: 'U', Down: 'D', Left: 'L', Right: 'R'}

// Pattern is an ordered motion sequence.
type Pattern []Direction

// ParsePattern validates raw tokens. An empty input yields an empty pattern.
func ParsePattern(tokens []string) (Pattern, error) {
	p := make(Pattern, 0, len(tokens))
	for i, tok := range tokens {
		d := Direction(strings.ToLower(strings.TrimSpace(tok)))
		if _, ok := directionCodes[d]; !ok {
			return nil, fmt.Errorf("invalid direction %q at position %d", tok, i)
		}
		p = append(p, d)
	}
	return p, nil
}

// Equal compares element-wise, order-sensitive.
func (p Pattern) Equal(other Pattern) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Split cuts a combined sequence into the user's base part and a trailing
// suffix of suffixLen moves. When the sequence is shorter than the suffix the
// base is empty and the whole sequence is returned as the suffix.
func (p Pattern) Split(suffixLen int) (base, suffix Pattern) {
	if suffixLen < 0 {
		suffixLen = 0
	}
	if len(p) < suffixLen {
		return Pattern{}, p
	}
	cut := len(p) - suffixLen
	return p[:cut:cut], p[cut:]
}

// Encode returns a one-byte-per-move encoding used as hash input.
func (p Pattern) Encode() []byte {
	out := make([]byte, len(p))
	for i, d := range p {
		out[i] = directionCodes[d]
	}
	return out
}

// Strings returns the wire form.
func (p Pattern) Strings() []string {
	out := make([]string, len(p))
	for i, d := range p {
		out[i] = string(d)
	}
	return out
}
