// Package config loads optimizer and receding horizon settings from YAML with
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rwlmu/ml-adp/costtogo"
	"github.com/rwlmu/ml-adp/horizon"
	"github.com/rwlmu/ml-adp/partial"
	"github.com/rwlmu/ml-adp/problem"
	"gopkg.in/yaml.v3"
)

// OptimizerConfig selects and tunes the first control minimizer.
type OptimizerConfig struct {
	// Method is one of nelder-mead, bfgs, lbfgs or gradient-descent.
	Method string `json:"method" yaml:"method"`

	// Zero values keep the gonum defaults.
	MaxIterations      int     `json:"max_iterations" yaml:"max_iterations"`
	MaxEvaluations     int     `json:"max_evaluations" yaml:"max_evaluations"`
	GradientThreshold  float64 `json:"gradient_threshold" yaml:"gradient_threshold"`
	ConvergeAbsolute   float64 `json:"converge_absolute" yaml:"converge_absolute"`
	ConvergeIterations int     `json:"converge_iterations" yaml:"converge_iterations"`

	// PropagateStates rolls candidate controls through the dynamics.
	PropagateStates bool `json:"propagate_states" yaml:"propagate_states"`
}

// HorizonConfig configures the receding horizon loop.
type HorizonConfig struct {
	Window    int     `json:"window" yaml:"window"`
	Passes    int     `json:"passes" yaml:"passes"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	// Markovian is the slicing kind of cost-to-go built from this
	// configuration. It has no default and must be set.
	Markovian *bool `json:"markovian" yaml:"markovian"`
}

// Config is the full configuration.
type Config struct {
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`
	Horizon   HorizonConfig   `json:"horizon" yaml:"horizon"`
}

// Default returns the configuration used when no file is given. Horizon
// markovian is left unset, so a default configuration only validates once it
// is supplied.
func Default() Config {
	return Config{
		Optimizer: OptimizerConfig{
			Method:          partial.MethodNelderMead,
			PropagateStates: true,
		},
		Horizon: HorizonConfig{
			Window:    5,
			Passes:    1,
			Tolerance: 1e-9,
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path loads the defaults only.
func Load(path string) (Config, error) {
	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &config); err != nil {
			return config, err
		}
	}
	loadFromEnv(&config)
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Parse decodes data over the defaults and validates it. Environment
// overrides are not applied.
func Parse(data []byte) (Config, error) {
	config := Default()
	if err := decode(data, &config); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func decode(data []byte, config *Config) error {
	if err := yaml.Unmarshal(data, config); err != nil {
		// JSON is a YAML subset, but the JSON error is easier to read for
		// files that were meant to be JSON.
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadFromEnv(config *Config) {
	if v := os.Getenv("MLADP_OPTIMIZER_METHOD"); v != "" {
		config.Optimizer.Method = v
	}
	if v := os.Getenv("MLADP_OPTIMIZER_MAX_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Optimizer.MaxIterations = i
		}
	}
	if v := os.Getenv("MLADP_HORIZON_MARKOVIAN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Horizon.Markovian = &b
		}
	}
	if v := os.Getenv("MLADP_HORIZON_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Horizon.Window = i
		}
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if _, err := partial.NewGonumMinimizer(c.Optimizer.Method); err != nil {
		return err
	}
	if c.Optimizer.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0")
	}
	if c.Optimizer.MaxEvaluations < 0 {
		return fmt.Errorf("max_evaluations must be >= 0")
	}
	if c.Optimizer.GradientThreshold < 0 {
		return fmt.Errorf("gradient_threshold must be >= 0")
	}
	if c.Optimizer.ConvergeAbsolute < 0 {
		return fmt.Errorf("converge_absolute must be >= 0")
	}
	if c.Optimizer.ConvergeIterations < 0 {
		return fmt.Errorf("converge_iterations must be >= 0")
	}
	if c.Horizon.Window < 1 {
		return fmt.Errorf("window must be >= 1")
	}
	if c.Horizon.Passes < 1 {
		return fmt.Errorf("passes must be >= 1")
	}
	if c.Horizon.Tolerance < 0 {
		return fmt.Errorf("tolerance must be >= 0")
	}
	if c.Horizon.Markovian == nil {
		return fmt.Errorf("markovian must be set")
	}
	return nil
}

// Minimizer returns the configured gonum minimizer.
func (c OptimizerConfig) Minimizer() (*partial.GonumMinimizer, error) {
	m, err := partial.NewGonumMinimizer(c.Method)
	if err != nil {
		return nil, err
	}
	m.MaxIterations = c.MaxIterations
	m.MaxEvaluations = c.MaxEvaluations
	m.GradientThreshold = c.GradientThreshold
	m.ConvergeAbsolute = c.ConvergeAbsolute
	m.ConvergeIterations = c.ConvergeIterations
	return m, nil
}

// OptimizerOptions converts the optimizer section to partial options.
func (c Config) OptimizerOptions() ([]partial.Option, error) {
	m, err := c.Optimizer.Minimizer()
	if err != nil {
		return nil, err
	}
	return []partial.Option{
		partial.WithMinimizer(m),
		partial.WithPropagateStates(c.Optimizer.PropagateStates),
	}, nil
}

// Controller builds a horizon controller over ctg. Extra options are applied
// after the configured ones, so a logger or minimizer can still be swapped in.
func (c Config) Controller(ctg *costtogo.CostToGo, extra ...partial.Option) (*horizon.Controller, error) {
	opts, err := c.OptimizerOptions()
	if err != nil {
		return nil, err
	}
	ctrl, err := horizon.New(ctg, partial.New(append(opts, extra...)...), c.Horizon.Window)
	if err != nil {
		return nil, err
	}
	ctrl.Passes = c.Horizon.Passes
	ctrl.Tolerance = c.Horizon.Tolerance
	return ctrl, nil
}

// CostToGo builds a cost-to-go of the given length over p using the
// configured slicing kind.
func (c Config) CostToGo(p problem.Problem, length int) (*costtogo.CostToGo, error) {
	if c.Horizon.Markovian == nil {
		return nil, fmt.Errorf("markovian must be set")
	}
	return costtogo.New(p, length, *c.Horizon.Markovian)
}
