package quote

import (
	"context"
	"regexp"

	logx "stockbot/pkg/logx"
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9.\-]{1,8}$`)

// ValidFormat reports whether s looks like a ticker. It does no I/O.
func ValidFormat(s string) bool { return symbolRe.MatchString(normalize(s)) }

// PriceChecker is the existence oracle behind Validator.
type PriceChecker interface {
	HasPrice(ctx context.Context, symbol string) (bool, error)
}

// Validator accepts symbols that pass ValidFormat and that the quote source
// prices. Source errors count as invalid. It is stateless.
type Validator struct {
	oracle PriceChecker
	log    logx.Logger
}

func NewValidator(oracle PriceChecker, log logx.Logger) *Validator {
	return &Validator{oracle: oracle, log: log}
}

func (v *Validator) Valid(ctx context.Context, symbol string) bool {
	sym := normalize(symbol)
	if !ValidFormat(sym) {
		return false
	}
	ok, err := v.oracle.HasPrice(ctx, sym)
	if err != nil {
		v.log.Debug("symbol lookup failed", logx.String("symbol", sym), logx.Err(err))
		return false
	}
	return ok
}
