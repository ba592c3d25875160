package complexity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Level classifies a pathway by size.
type Level string

const (
	LevelMinimal       Level = "minimal"
	LevelModerate      Level = "moderate"
	LevelComprehensive Level = "comprehensive"
)

// Signal returns the level's contribution to the quality score.
func (l Level) Signal() float64 {
	switch l {
	case LevelComprehensive:
		return 1
	case LevelModerate:
		return 2.0 / 3.0
	case LevelMinimal:
		return 1.0 / 3.0
	}
	return 0
}

// Levels holds the node-count thresholds. A graph with fewer than Moderate
// nodes is minimal, fewer than Comprehensive is moderate, otherwise comprehensive.
type Levels struct {
	Moderate      int `yaml:"moderate" json:"moderate"`
	Comprehensive int `yaml:"comprehensive" json:"comprehensive"`
}

// Weights are the relative weights of the four quality signals.
type Weights struct {
	Evidence    float64 `yaml:"evidence" json:"evidence"`
	Stage       float64 `yaml:"stage" json:"stage"`
	BenefitHarm float64 `yaml:"benefit_harm" json:"benefit_harm"`
	Level       float64 `yaml:"level" json:"level"`
}

func (w Weights) sum() float64 {
	return w.Evidence + w.Stage + w.BenefitHarm + w.Level
}

// Stage is one canonical care stage, detected by keyword match on node labels.
type Stage struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Rule emits Message when the expr condition When holds over the score signals.
// Message may reference signals as ${{name}}.
type Rule struct {
	ID      string `yaml:"id" json:"id"`
	When    string `yaml:"when" json:"when"`
	Message string `yaml:"message" json:"message"`
}

// Config parameterizes the scorer.
type Config struct {
	Levels  Levels  `yaml:"levels" json:"levels"`
	Weights Weights `yaml:"weights" json:"weights"`
	Stages  []Stage `yaml:"stages" json:"stages"`
	Rules   []Rule  `yaml:"rules" json:"rules"`
}

// DefaultConfig returns the built-in thresholds, weights, stages and rules.
func DefaultConfig() Config {
	return Config{
		Levels: Levels{Moderate: 12, Comprehensive: 25},
		Weights: Weights{
			Evidence:    0.3,
			Stage:       0.3,
			BenefitHarm: 0.2,
			Level:       0.2,
		},
		Stages: DefaultStages(),
		Rules:  DefaultRules(),
	}
}

// ParseConfig decodes YAML over DefaultConfig. Sections absent from data keep
// their defaults; a present stages or rules list replaces the default list.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse complexity config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML file. A missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read complexity config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks thresholds, weights, stages and rules for consistency.
func (c Config) Validate() error {
	if c.Levels.Moderate <= 0 || c.Levels.Comprehensive <= c.Levels.Moderate {
		return fmt.Errorf("invalid level thresholds: moderate=%d comprehensive=%d (need 0 < moderate < comprehensive)",
			c.Levels.Moderate, c.Levels.Comprehensive)
	}
	w := c.Weights
	if w.Evidence < 0 || w.Stage < 0 || w.BenefitHarm < 0 || w.Level < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if w.sum() <= 0 {
		return fmt.Errorf("weights must not all be zero")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	seen := make(map[string]bool, len(c.Stages))
	for _, s := range c.Stages {
		if s.ID == "" {
			return fmt.Errorf("stage with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate stage %q", s.ID)
		}
		seen[s.ID] = true
		if len(s.Keywords) == 0 {
			return fmt.Errorf("stage %q has no keywords", s.ID)
		}
	}
	ruleIDs := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.ID == "" || r.When == "" {
			return fmt.Errorf("rule needs both id and when (got id=%q)", r.ID)
		}
		if ruleIDs[r.ID] {
			return fmt.Errorf("duplicate rule %q", r.ID)
		}
		ruleIDs[r.ID] = true
	}
	return nil
}

// LevelFor classifies a node count.
func (c Config) LevelFor(nodeCount int) Level {
	switch {
	case nodeCount < c.Levels.Moderate:
		return LevelMinimal
	case nodeCount < c.Levels.Comprehensive:
		return LevelModerate
	default:
		return LevelComprehensive
	}
}
