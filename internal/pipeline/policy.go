package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kpieval-backend/internal/synthesis"
)

// StageOverride tunes one stage's execution policy from config.
type StageOverride struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Policy is the operator-tunable pipeline configuration, loaded from an
// optional YAML file and overlaid onto defaults.
type Policy struct {
	// Workers bounds concurrent stage execution within one run.
	Workers int `yaml:"workers"`

	// BackoffBase seeds the exponential retry backoff.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// MinPeerSample is the smallest regional cohort the benchmark
	// accepts before falling back to regional averages.
	MinPeerSample int `yaml:"min_peer_sample"`

	// Stages overrides per-stage attempts and timeouts.
	Stages map[string]StageOverride `yaml:"stages"`

	// Synthesis configures scoring weights, thresholds and pricing.
	Synthesis synthesis.Config `yaml:"synthesis"`
}

// DefaultPolicy returns the built-in pipeline policy.
func DefaultPolicy() Policy {
	return Policy{
		Workers:       4,
		BackoffBase:   500 * time.Millisecond,
		MinPeerSample: 5,
		Synthesis:     synthesis.DefaultConfig(),
	}
}

// LoadPolicy reads path, overlays it onto the defaults and validates the
// result. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, ConfigurationError(fmt.Errorf("read pipeline policy %s: %w", path, err))
	}
	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Policy{}, ConfigurationError(fmt.Errorf("parse pipeline policy %s: %w", path, err))
	}

	if override.Workers > 0 {
		policy.Workers = override.Workers
	}
	if override.BackoffBase > 0 {
		policy.BackoffBase = override.BackoffBase
	}
	if override.MinPeerSample > 0 {
		policy.MinPeerSample = override.MinPeerSample
	}
	policy.Stages = override.Stages
	policy.Synthesis = policy.Synthesis.Merge(override.Synthesis)

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate rejects policies that cannot drive a run.
func (p Policy) Validate() error {
	if p.Workers <= 0 {
		return ConfigurationError(fmt.Errorf("workers must be positive"))
	}
	if p.BackoffBase <= 0 {
		return ConfigurationError(fmt.Errorf("backoff base must be positive"))
	}
	for id, override := range p.Stages {
		if override.MaxAttempts < 0 || override.Timeout < 0 {
			return ConfigurationError(fmt.Errorf("stage override %s: negative attempts or timeout", id))
		}
	}
	if err := p.Synthesis.Validate(); err != nil {
		return ConfigurationError(err)
	}
	return nil
}

// StageDefs applies the per-stage overrides to the default graph. The
// graph shape itself is fixed; only attempts and timeouts move.
func (p Policy) StageDefs() []StageDef {
	defs := DefaultStageDefs()
	for i, def := range defs {
		override, ok := p.Stages[def.ID]
		if !ok {
			continue
		}
		if override.MaxAttempts > 0 {
			defs[i].MaxAttempts = override.MaxAttempts
		}
		if override.Timeout > 0 {
			defs[i].Timeout = override.Timeout
		}
	}
	return defs
}
