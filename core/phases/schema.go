package phases

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

const basePrompt = `You are in a live spoken conversation.
- Respond naturally and conversationally.
- Keep responses concise (1-2 sentences typically).
- No disclaimers or meta-commentary.
- No emojis or excessive filler.`

// SignalAnnotation is the shape of one entry inside a response's <signals>
// block. The schema derived from it is embedded into the system prompt so the
// model knows what the engine can consume.
type SignalAnnotation struct {
	Name    string         `json:"name" jsonschema:"description=Signal name in domain.observation form,example=custom.exam.greeting_complete"`
	Payload map[string]any `json:"payload,omitempty" jsonschema:"description=Optional structured data for the signal"`
}

func signalSchemaJSON() string {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(SignalAnnotation{})

	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(data)
}

// SystemPrompt assembles the full system prompt for a phase: base behavior,
// shared profile context, phase instructions, and the signal emission
// contract including relevant trigger signals.
func (p *Profile) SystemPrompt(phaseID string) string {
	var sections []string
	sections = append(sections, basePrompt)

	if p == nil {
		return basePrompt
	}

	if p.Context != "" {
		sections = append(sections, strings.TrimSpace(p.Context))
	}

	phase, ok := p.Phase(phaseID)
	if ok && phase.Instructions != "" {
		sections = append(sections, strings.TrimSpace(phase.Instructions))
	}

	if instructions := p.signalInstructions(phaseID); instructions != "" {
		sections = append(sections, instructions)
	}

	return strings.Join(sections, "\n\n")
}

func (p *Profile) signalInstructions(phaseID string) string {
	relevant := p.relevantSignals(phaseID)
	if len(relevant) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("SIGNALS: When one of the conditions below is reached, append a block of the form\n")
	b.WriteString("<signals>\n{\"signal.name\": {}}\n</signals>\n")
	b.WriteString("after your spoken response. Emit only signals from this list:\n")
	for _, name := range relevant {
		b.WriteString("- " + name + "\n")
	}
	if schema := signalSchemaJSON(); schema != "" {
		b.WriteString("Each entry must satisfy this schema: " + schema)
	}

	return b.String()
}

// relevantSignals collects the trigger signals of outgoing edges plus, for
// terminal phases, the completion signal.
func (p *Profile) relevantSignals(phaseID string) []string {
	var relevant []string
	seen := map[string]bool{}

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		relevant = append(relevant, name)
	}

	for _, transition := range p.Transitions {
		if transition.FromPhase != phaseID {
			continue
		}
		for _, name := range transition.TriggerSignals {
			add(name)
		}
	}

	if phase, ok := p.Phase(phaseID); ok {
		add(phase.CompletionSignal)
	}

	return relevant
}
