package dice

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// exprPattern matches "[count]d<sides>[kh<keep>][+|-<mod>]".
var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)(?:kh(\d+))?(?:([+-])(\d+))?$`)

// Expression is a parsed dice expression.
//
// Invariant: Count >= 1, Sides >= 2, 0 <= KeepHighest < Count.
type Expression struct {
	Raw         string
	Count       int
	Sides       int
	KeepHighest int // 0 keeps every die
	Modifier    int
}

// Parse parses forms such as "d20", "2d6", "2d6+3", "1d8-1" and "4d6kh3".
// Whitespace is ignored and the expression is case-insensitive.
//
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(raw string) (Expression, error) {
	s := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", raw)
	}

	expr := Expression{Raw: raw, Count: 1}
	if m[1] != "" {
		expr.Count, _ = strconv.Atoi(m[1])
	}
	expr.Sides, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		expr.KeepHighest, _ = strconv.Atoi(m[3])
	}
	if m[5] != "" {
		expr.Modifier, _ = strconv.Atoi(m[5])
		if m[4] == "-" {
			expr.Modifier = -expr.Modifier
		}
	}

	switch {
	case expr.Count < 1:
		return Expression{}, fmt.Errorf("dice: die count must be >= 1 in %q", raw)
	case expr.Sides < 2:
		return Expression{}, fmt.Errorf("dice: die sides must be >= 2 in %q", raw)
	case m[3] != "" && (expr.KeepHighest < 1 || expr.KeepHighest >= expr.Count):
		return Expression{}, fmt.Errorf("dice: kh %d must be > 0 and < count %d in %q", expr.KeepHighest, expr.Count, raw)
	}
	return expr, nil
}

// MustParse is Parse that panics on error. Use it for package-level values.
func MustParse(raw string) Expression {
	e, err := Parse(raw)
	if err != nil {
		panic(err.Error())
	}
	return e
}

// Roll evaluates expr against src.
//
// Precondition: expr came from Parse; src is non-nil.
// Postcondition: len(result.Rolled) == expr.Count; result.Kept holds the
// KeepHighest largest dice, or every die when KeepHighest is 0.
func Roll(expr Expression, src Source) RollResult {
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}
	kept := rolled
	if expr.KeepHighest > 0 {
		kept = append([]int(nil), rolled...)
		sort.Sort(sort.Reverse(sort.IntSlice(kept)))
		kept = kept[:expr.KeepHighest]
	}
	return RollResult{Expression: expr.Raw, Rolled: rolled, Kept: kept, Modifier: expr.Modifier}
}

// RollExpr parses raw and rolls it against src.
func RollExpr(raw string, src Source) (RollResult, error) {
	e, err := Parse(raw)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(e, src), nil
}
