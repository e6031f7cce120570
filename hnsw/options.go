package hnsw

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jcalabro/sketchy"
)

// Options represents the options for configuring an HNSW graph.
type Options struct {
	// M is the number of neighbours a node links to on each layer above 0.
	// Layer 0 allows 2*M. Higher M improves recall on high dimensional data at
	// the cost of memory and build time.
	M int

	// EFConstruction is the beam width used while inserting. It must be at
	// least M.
	EFConstruction int

	// EF is the default beam width for searches.
	EF int

	// ML scales the exponential level distribution. The default 1/ln 2 halves
	// the population of each successive layer.
	ML float64

	// Seed seeds level assignment. Equal seeds and insert sequences produce
	// equal graphs.
	Seed uint64

	// Logger receives build events. Defaults to a discarding logger.
	Logger *slog.Logger
}

// DefaultOptions are the options used by New before optFns are applied.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EF:             50,
	ML:             1 / math.Ln2,
}

// WithM sets M.
func WithM(m int) func(o *Options) {
	return func(o *Options) { o.M = m }
}

// WithEFConstruction sets the insert beam width.
func WithEFConstruction(ef int) func(o *Options) {
	return func(o *Options) { o.EFConstruction = ef }
}

// WithEF sets the default search beam width.
func WithEF(ef int) func(o *Options) {
	return func(o *Options) { o.EF = ef }
}

// WithML sets the level normalization factor.
func WithML(ml float64) func(o *Options) {
	return func(o *Options) { o.ML = ml }
}

// WithSeed sets the level assignment seed.
func WithSeed(seed uint64) func(o *Options) {
	return func(o *Options) { o.Seed = seed }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

func (o *Options) validate() error {
	switch {
	case o.M < 1:
		return fmt.Errorf("%w: m must be at least 1, got %d", sketchy.ErrConfiguration, o.M)
	case o.EFConstruction < o.M:
		return fmt.Errorf("%w: ef_construction %d is below m %d", sketchy.ErrConfiguration, o.EFConstruction, o.M)
	case o.EF < 1:
		return fmt.Errorf("%w: ef must be at least 1, got %d", sketchy.ErrConfiguration, o.EF)
	case !(o.ML > 0) || math.IsInf(o.ML, 1):
		return fmt.Errorf("%w: ml must be positive and finite, got %v", sketchy.ErrConfiguration, o.ML)
	}
	return nil
}
