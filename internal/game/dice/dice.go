// Package dice provides the randomness abstraction and dice-expression
// evaluation used by initiative rolls and action damage.
package dice

import (
	"fmt"
	"strings"
)

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// RollResult records every die rolled for one expression evaluation.
//
// Postcondition: Total() == sum(Kept) + Modifier.
type RollResult struct {
	Expression string // expression as written, e.g. "2d6+3"
	Rolled     []int  // every die rolled, in roll order
	Kept       []int  // dice counted toward the total
	Modifier   int
}

// Total returns the sum of the kept dice plus the modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Kept {
		total += d
	}
	return total
}

// String renders the roll as "2d6+3: [4 5] +3 = 12".
func (r RollResult) String() string {
	parts := make([]string, len(r.Kept))
	for i, d := range r.Kept {
		parts[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s: [%s] %+d = %d", r.Expression, strings.Join(parts, " "), r.Modifier, r.Total())
}
