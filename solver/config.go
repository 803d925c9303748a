package solver

import "github.com/RudreshVeerkhare/rheidos/dispatch"

// Config tunes the conjugate-gradient solve and the adjacency cache.
type Config struct {
	// MaxIter bounds the iteration count; the best-effort field is still
	// committed when the bound is hit.
	MaxIter int `toml:"max_iter"`

	// Tol is the relative residual-energy threshold: the solve converges
	// when dot(r,z) drops below Tol^2 times its initial value.
	Tol float64 `toml:"tol"`

	// PollBlock is how many iterations run between host-side polls of the
	// stop state. Polling every iteration is a severe performance
	// regression against an accelerator backend, so blocks are the unit of
	// synchronization.
	PollBlock int `toml:"poll_block"`

	// UseJacobi enables the diagonal preconditioner.
	UseJacobi bool `toml:"use_jacobi"`

	// AlwaysRebuildTopology forces a full adjacency rebuild every solve,
	// bypassing the identity-based caching heuristics. Debug override.
	AlwaysRebuildTopology bool `toml:"always_rebuild_topology"`

	// Grain is the parallel chunk-size hint for elementwise kernels.
	Grain int `toml:"grain"`
}

// DefaultConfig returns the standard tuning values.
func DefaultConfig() Config {
	return Config{
		MaxIter:   800,
		Tol:       1e-6,
		PollBlock: 25,
		UseJacobi: true,
		Grain:     dispatch.DefaultGrain,
	}
}

// withDefaults fills unset numeric fields so a partially populated Config
// still solves.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIter <= 0 {
		c.MaxIter = d.MaxIter
	}
	if c.Tol <= 0 {
		c.Tol = d.Tol
	}
	if c.PollBlock <= 0 {
		c.PollBlock = d.PollBlock
	}
	if c.Grain <= 0 {
		c.Grain = d.Grain
	}
	return c
}
