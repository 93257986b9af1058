package phases

import (
	"strings"
	"testing"
)

const profileYAML = `
name: mock-exam
initial_phase: greeting
context: |
  You are conducting a speaking exam.
phases:
  - id: greeting
    name: Greeting
    start: ai
    instructions: Greet the candidate warmly.
    tuning:
      authority: ai
      pause_ms: 400
  - id: part1
    name: Interview
    acknowledgments:
      - "Thank you."
    completion_signal: exam.finished
    tuning:
      interruption_sensitivity: 0.2
      human_speaking_limit_sec: 30
transitions:
  - from: greeting
    to: part1
    trigger_signals: [greeting.done]
`

func TestLoadParsesProfileAndFillsTuningDefaults(t *testing.T) {
	profile, err := Load([]byte(profileYAML))
	if err != nil {
		t.Fatalf("failed to load profile: %v", err)
	}

	if profile.Name != "mock-exam" || profile.InitialPhase != "greeting" {
		t.Fatalf("header fields did not parse: %+v", profile)
	}

	greeting, ok := profile.Phase("greeting")
	if !ok {
		t.Fatalf("greeting phase missing")
	}
	if greeting.Tuning.Authority != AuthorityAI || greeting.Tuning.PauseMs != 400 {
		t.Fatalf("explicit tuning values lost: %+v", greeting.Tuning)
	}
	if greeting.Tuning.EndMs != 1200 || greeting.Tuning.SafetyTimeoutMs != 2500 {
		t.Fatalf("unset tuning fields must fall back to defaults: %+v", greeting.Tuning)
	}

	part1, ok := profile.Phase("part1")
	if !ok {
		t.Fatalf("part1 phase missing")
	}
	if part1.Tuning.Authority != AuthorityHuman {
		t.Fatalf("unset authority must default to human, got %q", part1.Tuning.Authority)
	}
	if part1.Tuning.InterruptionSensitivity != 0.2 {
		t.Fatalf("sensitivity did not parse: %v", part1.Tuning.InterruptionSensitivity)
	}
	if part1.Tuning.HumanSpeakingLimitSec == nil || *part1.Tuning.HumanSpeakingLimitSec != 30 {
		t.Fatalf("speaking limit did not parse: %v", part1.Tuning.HumanSpeakingLimitSec)
	}
}

func TestLoadRejectsInvalidGraphs(t *testing.T) {
	broken := strings.Replace(profileYAML, "to: part1", "to: part9", 1)

	if _, err := Load([]byte(broken)); err == nil {
		t.Fatalf("expected a transition to an undeclared phase to fail loading")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load([]byte("phases: [whoops")); err == nil {
		t.Fatalf("expected malformed yaml to fail loading")
	}
}

func TestSystemPromptLayersContextInstructionsAndSignals(t *testing.T) {
	profile, err := Load([]byte(profileYAML))
	if err != nil {
		t.Fatalf("failed to load profile: %v", err)
	}

	prompt := profile.SystemPrompt("greeting")
	for _, want := range []string{
		"live spoken conversation",
		"conducting a speaking exam",
		"Greet the candidate warmly.",
		"greeting.done",
		"<signals>",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	part1Prompt := profile.SystemPrompt("part1")
	if strings.Contains(part1Prompt, "greeting.done") {
		t.Fatalf("part1 prompt must not advertise another phase's signals")
	}
	if !strings.Contains(part1Prompt, "exam.finished") {
		t.Fatalf("terminal phase prompt must advertise its completion signal")
	}
}

func TestSystemPromptOmitsSignalSectionWithoutRelevantSignals(t *testing.T) {
	profile := SingleProfile(Phase{ID: "main"})

	prompt := profile.SystemPrompt("main")
	if strings.Contains(prompt, "SIGNALS") {
		t.Fatalf("phase without outgoing edges or completion signal got a signal section:\n%s", prompt)
	}
}
