package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/siherrmann/biograph/helper"
	"gopkg.in/yaml.v3"
)

// RunConfig represents configuration for a discovery run
type RunConfig struct {
	// Crawl bounds
	Seeds        []string `json:"seeds" yaml:"seeds"`
	MaxDepth     int      `json:"max_depth" yaml:"max_depth"`
	MaxDocuments int      `json:"max_documents" yaml:"max_documents"`
	MaxEntities  int      `json:"max_entities" yaml:"max_entities"`

	// Stage thresholds
	ClassifyThreshold float64 `json:"classify_threshold" yaml:"classify_threshold"`
	PromoteThreshold  int     `json:"promote_threshold" yaml:"promote_threshold"`

	// Collaborator handling
	Retries       int           `json:"retries" yaml:"retries"`
	RepairRetries int           `json:"repair_retries" yaml:"repair_retries"`
	CallTimeout   time.Duration `json:"call_timeout" yaml:"-"`
	AbortAfter    int           `json:"abort_after" yaml:"abort_after"`

	// Concurrency
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultRunConfig returns a sensible default configuration
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxDepth:          2,
		MaxDocuments:      50,
		MaxEntities:       200,
		ClassifyThreshold: 0.5,
		PromoteThreshold:  2,
		Retries:           2,
		RepairRetries:     2,
		CallTimeout:       60 * time.Second,
		AbortAfter:        3,
		Workers:           4,
	}
}

// Validate checks the bounds a run cannot start without.
func (r *RunConfig) Validate() error {
	if len(r.Seeds) == 0 {
		return errors.New("at least one seed is required")
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("invalid max depth %v", r.MaxDepth)
	}
	if r.MaxDocuments < 1 {
		return fmt.Errorf("invalid document budget %v", r.MaxDocuments)
	}
	if r.MaxEntities < 1 {
		return fmt.Errorf("invalid entity budget %v", r.MaxEntities)
	}
	if r.PromoteThreshold < 1 {
		return fmt.Errorf("invalid promote threshold %v", r.PromoteThreshold)
	}
	if r.Workers < 1 {
		return fmt.Errorf("invalid worker count %v", r.Workers)
	}
	return nil
}

// yamlRunConfig mirrors RunConfig for file loading, with the timeout as a
// duration string ("90s", "2m").
type yamlRunConfig struct {
	RunConfig   `yaml:",inline"`
	CallTimeout string `yaml:"call_timeout"`
}

// RunConfigFromFile reads a YAML run configuration. Unset values fall back to
// the defaults from DefaultRunConfig.
func RunConfigFromFile(path string) (*RunConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read run config", err)
	}

	loaded := yamlRunConfig{RunConfig: DefaultRunConfig()}
	err = yaml.Unmarshal(content, &loaded)
	if err != nil {
		return nil, helper.NewError("unmarshal run config", err)
	}

	config := loaded.RunConfig
	if loaded.CallTimeout != "" {
		timeout, err := time.ParseDuration(loaded.CallTimeout)
		if err != nil {
			return nil, helper.NewError("parse call timeout", err)
		}
		config.CallTimeout = timeout
	} else {
		config.CallTimeout = DefaultRunConfig().CallTimeout
	}

	return &config, nil
}

// ReviewConfig represents configuration for review queries
type ReviewConfig struct {
	// Vector search parameters
	SimilarTopK         int     `json:"similar_top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Listing parameters
	Limit  int `json:"limit"`
	Offset int `json:"offset,omitempty"`
}

// DefaultReviewConfig returns a sensible default configuration
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		SimilarTopK:         5,
		SimilarityThreshold: 0.7,
		Limit:               20,
	}
}
