// internal/simulation/config.go
package simulation

import (
	"errors"
	"fmt"
)

const (
	DefaultSteps = 20
	DefaultBurst = 1
)

// Config holds the parameters of a single simulation run.
type Config struct {
	LibraryName string
	// Seed makes a run reproducible. A random seed is drawn when nil and
	// reported in the summary.
	Seed *uint64
	// Rate limits steps per second. Zero runs unpaced.
	Rate  float64
	Burst int
}

func (c Config) validate() error {
	var errs []error
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %v", c.Rate))
	}
	if c.Burst < 0 {
		errs = append(errs, fmt.Errorf("burst must not be negative, got %d", c.Burst))
	}
	return errors.Join(errs...)
}
