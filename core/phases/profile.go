// Package phases models conversation phase graphs: named behavioral phases
// with their own turn-taking tuning, chained by signal-triggered transitions.
package phases

import (
	"fmt"
	"slices"
)

type Authority string

const (
	AuthorityHuman   Authority = "human"
	AuthorityAI      Authority = "ai"
	AuthorityDefault Authority = "default"
)

// Tuning is the turn-taking configuration a phase imposes. It is applied
// wholesale onto engine state whenever the phase becomes active.
type Tuning struct {
	Authority               Authority `yaml:"authority"`
	PauseMs                 int       `yaml:"pause_ms"`
	EndMs                   int       `yaml:"end_ms"`
	SafetyTimeoutMs         int       `yaml:"safety_timeout_ms"`
	InterruptionSensitivity float64   `yaml:"interruption_sensitivity"`
	HumanSpeakingLimitSec   *int      `yaml:"human_speaking_limit_sec"`
}

// DefaultTuning mirrors the engine's out-of-the-box turn-taking behavior.
func DefaultTuning() Tuning {
	return Tuning{
		Authority:               AuthorityHuman,
		PauseMs:                 600,
		EndMs:                   1200,
		SafetyTimeoutMs:         2500,
		InterruptionSensitivity: 0.5,
	}
}

// Phase is one behavioral stage of a conversation.
type Phase struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Start selects who opens the phase ("human" or "ai").
	Start string `yaml:"start"`

	Voice       string  `yaml:"voice"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	Instructions string `yaml:"instructions"`

	// Acknowledgments are candidate phrases spoken when the human speaking
	// limit is exceeded; one is picked at random outside the reducer.
	Acknowledgments []string `yaml:"acknowledgments"`

	// CompletionSignal, on a terminal phase, ends the session when emitted.
	CompletionSignal string `yaml:"completion_signal"`

	Tuning Tuning `yaml:"tuning"`
}

// Transition is one outgoing edge of the phase graph.
type Transition struct {
	FromPhase      string   `yaml:"from"`
	ToPhase        string   `yaml:"to"`
	TriggerSignals []string `yaml:"trigger_signals"`
	// RequireAll demands every trigger signal; otherwise any one suffices.
	RequireAll bool `yaml:"require_all"`
}

func (t Transition) matches(emitted []string) bool {
	if len(t.TriggerSignals) == 0 {
		return false
	}

	if t.RequireAll {
		for _, trigger := range t.TriggerSignals {
			if !slices.Contains(emitted, trigger) {
				return false
			}
		}
		return true
	}

	for _, trigger := range t.TriggerSignals {
		if slices.Contains(emitted, trigger) {
			return true
		}
	}
	return false
}

// Profile is a complete phase graph plus shared prompt context. It is loaded
// once at session start and treated as read-only afterwards.
type Profile struct {
	Name         string `yaml:"name"`
	InitialPhase string `yaml:"initial_phase"`

	// Phases in declaration order; order defines phase index reporting.
	Phases []Phase `yaml:"phases"`

	// Transitions in declaration order; the first matching edge wins.
	Transitions []Transition `yaml:"transitions"`

	// Context is instruction text shared by every phase.
	Context string `yaml:"context"`
}

// SingleProfile wraps one standalone phase into a degenerate graph, for
// sessions that never transition.
func SingleProfile(phase Phase) *Profile {
	if phase.ID == "" {
		phase.ID = "main"
	}

	return &Profile{
		Name:         phase.Name,
		InitialPhase: phase.ID,
		Phases:       []Phase{phase},
	}
}

// Validate checks graph integrity. A profile that fails validation aborts
// session startup; this is the engine's only fatal condition.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("profile %q has no phases", p.Name)
	}

	seen := map[string]bool{}
	for _, phase := range p.Phases {
		if phase.ID == "" {
			return fmt.Errorf("profile %q has a phase without an id", p.Name)
		}
		if seen[phase.ID] {
			return fmt.Errorf("profile %q declares phase %q twice", p.Name, phase.ID)
		}
		seen[phase.ID] = true
	}

	if p.InitialPhase == "" {
		p.InitialPhase = p.Phases[0].ID
	}
	if !seen[p.InitialPhase] {
		return fmt.Errorf("profile %q initial phase %q not declared", p.Name, p.InitialPhase)
	}

	for _, transition := range p.Transitions {
		if !seen[transition.FromPhase] {
			return fmt.Errorf("profile %q transition from unknown phase %q", p.Name, transition.FromPhase)
		}
		if !seen[transition.ToPhase] {
			return fmt.Errorf("profile %q transition to unknown phase %q", p.Name, transition.ToPhase)
		}
		if len(transition.TriggerSignals) == 0 {
			return fmt.Errorf("profile %q transition %s->%s has no trigger signals",
				p.Name, transition.FromPhase, transition.ToPhase)
		}
	}

	return nil
}

// Phase looks a phase up by id.
func (p *Profile) Phase(id string) (Phase, bool) {
	if p == nil {
		return Phase{}, false
	}

	for _, phase := range p.Phases {
		if phase.ID == id {
			return phase, true
		}
	}
	return Phase{}, false
}

// Index reports the declaration position of a phase and the total count.
func (p *Profile) Index(id string) (index, total int) {
	if p == nil {
		return 0, 0
	}

	for i, phase := range p.Phases {
		if phase.ID == id {
			return i, len(p.Phases)
		}
	}
	return 0, len(p.Phases)
}

// FindTransition evaluates outgoing edges of fromPhase against the emitted
// signal set, in declaration order. The first edge whose condition holds
// wins; ok is false when nothing matches.
func (p *Profile) FindTransition(fromPhase string, emitted []string) (Transition, bool) {
	if p == nil || len(emitted) == 0 {
		return Transition{}, false
	}

	for _, transition := range p.Transitions {
		if transition.FromPhase != fromPhase {
			continue
		}
		if transition.matches(emitted) {
			return transition, true
		}
	}
	return Transition{}, false
}

// IsTerminal reports whether a phase has no outgoing transitions.
func (p *Profile) IsTerminal(phaseID string) bool {
	if p == nil {
		return true
	}

	for _, transition := range p.Transitions {
		if transition.FromPhase == phaseID {
			return false
		}
	}
	return true
}

// IsSessionComplete reports whether the emitted signal set completes a
// terminal phase.
func (p *Profile) IsSessionComplete(phaseID string, emitted []string) bool {
	if !p.IsTerminal(phaseID) {
		return false
	}

	phase, ok := p.Phase(phaseID)
	if !ok || phase.CompletionSignal == "" {
		return false
	}

	return slices.Contains(emitted, phase.CompletionSignal)
}
