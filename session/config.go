package session

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/RudreshVeerkhare/rheidos/solver"
)

// Config holds session-level tuning: the worker count for the parallel
// dispatch pool and the solver parameters.
type Config struct {
	// Workers is the dispatch pool size; zero means GOMAXPROCS.
	Workers int `toml:"workers"`

	Solver solver.Config `toml:"solver"`
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{Solver: solver.DefaultConfig()}
}

// LoadConfig reads a TOML configuration file over the defaults, so partial
// files only override what they mention.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}
