package phases

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a profile from YAML and validates the graph.
func Load(data []byte) (*Profile, error) {
	profile := &Profile{}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse phase profile: %w", err)
	}

	for i := range profile.Phases {
		applyTuningDefaults(&profile.Phases[i].Tuning)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid phase profile: %w", err)
	}

	return profile, nil
}

// LoadFile reads and parses a profile from a YAML file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phase profile %q: %w", path, err)
	}

	return Load(data)
}

func applyTuningDefaults(tuning *Tuning) {
	defaults := DefaultTuning()
	if tuning.Authority == "" {
		tuning.Authority = defaults.Authority
	}
	if tuning.PauseMs == 0 {
		tuning.PauseMs = defaults.PauseMs
	}
	if tuning.EndMs == 0 {
		tuning.EndMs = defaults.EndMs
	}
	if tuning.SafetyTimeoutMs == 0 {
		tuning.SafetyTimeoutMs = defaults.SafetyTimeoutMs
	}
}
