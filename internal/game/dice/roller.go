package dice

import "go.uber.org/zap"

// Roller rolls against a Source and logs every roll at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller.
//
// Precondition: src must be non-nil. A nil logger disables logging.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Source returns the randomness provider backing this Roller.
func (r *Roller) Source() Source { return r.src }

// Roll evaluates expr and logs the result.
func (r *Roller) Roll(expr Expression) RollResult {
	res := Roll(expr, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", res.Expression),
		zap.Ints("rolled", res.Rolled),
		zap.Ints("kept", res.Kept),
		zap.Int("modifier", res.Modifier),
		zap.Int("total", res.Total()),
	)
	return res
}

// RollExpr parses raw, rolls it and logs the result.
func (r *Roller) RollExpr(raw string) (RollResult, error) {
	e, err := Parse(raw)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}

// D20 rolls a single twenty-sided die.
//
// Postcondition: 1 <= result <= 20.
func (r *Roller) D20() int {
	return r.Roll(d20).Total()
}

var d20 = MustParse("d20")
