package config

import (
	"fmt"
	"os"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Bank struct {
		TTL string `yaml:"ttl"`
	} `yaml:"bank"`
	Contest ContestConfig `yaml:"contest"`
}

// ContestConfig is the deployment configuration of the contest itself:
// limits, deadline, opening window, per-category quotas and weights.
type ContestConfig struct {
	MaxTries         int    `yaml:"max_tries"`
	DeadlineDuration string `yaml:"deadline_duration"`
	Opening          struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"opening"`
	Quotas  map[string]int     `yaml:"quotas"`
	Weights map[string]float64 `yaml:"weights"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Settings validates the contest section and converts it into app settings.
// Every quota key must name a known category and every quota category must
// carry a weight; a misconfiguration here is a deployment defect.
func (c ContestConfig) Settings() (app.Settings, error) {
	settings := app.Settings{
		MaxTries:         c.MaxTries,
		DeadlineDuration: TTLDuration(c.DeadlineDuration, 30*time.Minute),
		Quotas:           make(map[domain.Category]int),
		Weights:          make(map[domain.Category]float64),
	}
	if settings.MaxTries == 0 {
		settings.MaxTries = 3
	}

	quotas := c.Quotas
	if len(quotas) == 0 {
		quotas = map[string]int{"radio": 2, "binary": 1}
	}
	weights := c.Weights
	if len(weights) == 0 {
		weights = map[string]float64{"radio": 10, "binary": 5}
	}

	for key, quota := range quotas {
		category := domain.Category(key)
		if !domain.KnownCategory(category) {
			return app.Settings{}, fmt.Errorf("contest.quotas: unknown category %q", key)
		}
		settings.Quotas[category] = quota
	}
	for key, weight := range weights {
		category := domain.Category(key)
		if !domain.KnownCategory(category) {
			return app.Settings{}, fmt.Errorf("contest.weights: unknown category %q", key)
		}
		settings.Weights[category] = weight
	}
	for category := range settings.Quotas {
		if _, ok := settings.Weights[category]; !ok {
			return app.Settings{}, fmt.Errorf("contest.weights: missing weight for category %q", category)
		}
	}

	if raw := c.Opening.Start; raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return app.Settings{}, fmt.Errorf("contest.opening.start: %w", err)
		}
		settings.OpeningStart = &start
	}
	if raw := c.Opening.End; raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return app.Settings{}, fmt.Errorf("contest.opening.end: %w", err)
		}
		settings.OpeningEnd = &end
	}
	return settings, nil
}
