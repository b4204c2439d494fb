package quote

import "context"

//go:generate mockgen -package=quote_test -destination=mock_source_test.go -source=source.go Source

// Source is a raw quote backend. Fetch returns whatever subset of symbols
// the backend knows; a missing symbol is not an error.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]RawQuote, error)
}
