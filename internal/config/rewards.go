package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewardsSeed is the initial rewards state written to the store on first boot.
type RewardsSeed struct {
	Enabled   bool            `yaml:"enabled"`
	InlineTip map[string]bool `yaml:"inline_tip"`
}

// LoadRewardsSeed reads and validates a rewards seed YAML file.
// Returns an os.ErrNotExist-wrapped error if the file is absent (caller
// silently skips in that case).
func LoadRewardsSeed(path string) (*RewardsSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rewards seed: %w", err)
	}
	var seed RewardsSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("rewards seed: %w", err)
	}
	for site := range seed.InlineTip {
		if site == "" {
			return nil, fmt.Errorf("rewards seed: inline_tip has an empty site key")
		}
	}
	if seed.InlineTip == nil {
		seed.InlineTip = map[string]bool{}
	}
	return &seed, nil
}
