// Package models defines the core data structures for BulkPipe.
//
// It includes contact rows, the campaign configuration with its validation
// rules, and the progress counters owned by the batch scheduler.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Validation ranges for campaign configuration inputs
const (
	// MinBatchSize is the smallest number of contacts processed per cycle
	MinBatchSize = 1
	// MaxBatchSize is the largest number of contacts processed per cycle
	MaxBatchSize = 10000
	// MinCycleIntervalMinutes is the shortest allowed gap between cycles
	MinCycleIntervalMinutes = 1
	// MaxCycleIntervalMinutes is the longest allowed gap between cycles
	MaxCycleIntervalMinutes = 60
)

// Defaults offered by the interactive prompts
const (
	DefaultBatchSize            = 100
	DefaultCycleIntervalMinutes = 5
	DefaultDelayPattern         = "[1,2,3,2]"
)

// CampaignConfig holds the immutable pacing parameters of a campaign.
type CampaignConfig struct {
	BatchSize            int   `json:"batch_size"`
	CycleIntervalMinutes int   `json:"cycle_interval_minutes"`
	DelayPattern         []int `json:"delay_pattern"` // seconds
}

// Validate checks every field against its allowed range.
func (c CampaignConfig) Validate() error {
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return &ConfigError{Field: "batch_size", Value: strconv.Itoa(c.BatchSize), Err: ErrInvalidBatchSize}
	}
	if c.CycleIntervalMinutes < MinCycleIntervalMinutes || c.CycleIntervalMinutes > MaxCycleIntervalMinutes {
		return &ConfigError{Field: "cycle_interval_minutes", Value: strconv.Itoa(c.CycleIntervalMinutes), Err: ErrInvalidCycleInterval}
	}
	if len(c.DelayPattern) == 0 {
		return &ConfigError{Field: "delay_pattern", Err: ErrEmptyDelayPattern}
	}
	for i, d := range c.DelayPattern {
		if d < 0 {
			return &ConfigError{Field: fmt.Sprintf("delay_pattern[%d]", i), Value: strconv.Itoa(d), Err: ErrNegativeDelay}
		}
	}
	return nil
}

// ParseCampaignConfig builds a validated CampaignConfig from the raw textual
// inputs collected at startup.
func ParseCampaignConfig(batchSize, cycleMinutes, delayPattern string) (CampaignConfig, error) {
	var cfg CampaignConfig

	n, err := parseIntField("batch_size", batchSize, ErrInvalidBatchSize)
	if err != nil {
		return cfg, err
	}
	cfg.BatchSize = n

	n, err = parseIntField("cycle_interval_minutes", cycleMinutes, ErrInvalidCycleInterval)
	if err != nil {
		return cfg, err
	}
	cfg.CycleIntervalMinutes = n

	pattern, err := ParseDelayPattern(delayPattern)
	if err != nil {
		return cfg, err
	}
	cfg.DelayPattern = pattern

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseIntField(field, raw string, sentinel error) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ConfigError{Field: field, Value: raw, Err: fmt.Errorf("%w: not an integer", sentinel)}
	}
	return n, nil
}

// ParseDelayPattern parses a delay sequence in seconds. Both a JSON array
// ("[1,2,3,2]") and a bare comma separated list ("1, 2, 3") are accepted.
func ParseDelayPattern(raw string) ([]int, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "[]" {
		return nil, &ConfigError{Field: "delay_pattern", Value: raw, Err: ErrEmptyDelayPattern}
	}

	if !strings.HasPrefix(s, "[") {
		s = "[" + s + "]"
	}

	var pattern []int
	if err := json.Unmarshal([]byte(s), &pattern); err != nil {
		return nil, &ConfigError{Field: "delay_pattern", Value: raw, Err: fmt.Errorf("%w: %v", ErrMalformedDelayPattern, err)}
	}
	if len(pattern) == 0 {
		return nil, &ConfigError{Field: "delay_pattern", Value: raw, Err: ErrEmptyDelayPattern}
	}
	for i, d := range pattern {
		if d < 0 {
			return nil, &ConfigError{Field: fmt.Sprintf("delay_pattern[%d]", i), Value: strconv.Itoa(d), Err: ErrNegativeDelay}
		}
	}
	return pattern, nil
}

// CampaignState is the lifecycle state of the batch scheduler.
type CampaignState string

const (
	// CampaignStateIdle is the state before the first tick.
	CampaignStateIdle CampaignState = "idle"
	// CampaignStateRunning is the state while batches remain to be processed.
	CampaignStateRunning CampaignState = "running"
	// CampaignStateCompleted is terminal; further ticks are no-ops.
	CampaignStateCompleted CampaignState = "completed"
)

// Progress tracks how far the campaign has advanced.
type Progress struct {
	CycleIndex   int `json:"cycle_index"`
	TotalBatches int `json:"total_batches"`
}

// Remaining returns the number of batches not yet processed.
func (p Progress) Remaining() int {
	if p.CycleIndex >= p.TotalBatches {
		return 0
	}
	return p.TotalBatches - p.CycleIndex
}

// Done reports whether every batch has been processed.
func (p Progress) Done() bool {
	return p.CycleIndex >= p.TotalBatches
}
