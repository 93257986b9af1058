package orchestration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnMetrics is the per-turn analytics bundle emitted by LogTurn actions.
type TurnMetrics struct {
	TurnID      int     `json:"turn_id"`
	Timestamp   float64 `json:"timestamp"`
	ProfileName string  `json:"profile_name"`
	PhaseID     string  `json:"phase_id,omitempty"`

	HumanSpeechDurationSec float64 `json:"human_speech_duration_sec"`
	SilenceBeforeEndMs     float64 `json:"silence_before_end_ms"`

	InterruptAttempts       int      `json:"interrupt_attempts"`
	InterruptsAccepted      int      `json:"interrupts_accepted"`
	InterruptsBlocked       int      `json:"interrupts_blocked"`
	InterruptTriggerReasons []string `json:"interrupt_trigger_reasons"`

	EndReason        string  `json:"end_reason"`
	AuthorityMode    string  `json:"authority_mode"`
	SensitivityValue float64 `json:"sensitivity_value"`

	PartialTranscriptLengths []int   `json:"partial_transcript_lengths"`
	FinalTranscriptLength    int     `json:"final_transcript_length"`
	ConfidenceScoreAtCutoff  float64 `json:"confidence_score_at_cutoff"`

	TranscriptionMs float64 `json:"transcription_ms"`
	GenerationMs    float64 `json:"generation_ms"`
	TotalLatencyMs  float64 `json:"total_latency_ms"`

	HumanTranscript string `json:"human_transcript"`
	AITranscript    string `json:"ai_transcript"`
}

// SessionSummary aggregates a whole session's turns.
type SessionSummary struct {
	SessionID          string  `json:"session_id"`
	ProfileName        string  `json:"profile_name"`
	SessionStart       float64 `json:"session_start"`
	SessionEnd         float64 `json:"session_end"`
	SessionDurationSec float64 `json:"session_duration_sec"`
	TotalTurns         int     `json:"total_turns"`

	AvgHumanSpeechSec      float64 `json:"avg_human_speech_sec"`
	AvgSilenceBeforeEndMs  float64 `json:"avg_silence_before_end_ms"`
	AvgTranscriptionMs     float64 `json:"avg_transcription_ms"`
	AvgGenerationMs        float64 `json:"avg_generation_ms"`
	AvgTotalLatencyMs      float64 `json:"avg_total_latency_ms"`
	TotalInterruptAttempts int     `json:"total_interrupt_attempts"`
	TotalInterruptsAccepted int    `json:"total_interrupts_accepted"`
	InterruptAcceptanceRate float64 `json:"interrupt_acceptance_rate"`

	EndReasonDistribution map[string]int `json:"end_reason_distribution"`
}

// SessionAnalytics is an append-only JSONL sink for turn metrics plus a
// summary file written on Close. All methods are nil-safe so the engine can
// run without a sink.
type SessionAnalytics struct {
	sessionID   string
	profileName string
	start       time.Time

	jsonlPath   string
	summaryPath string

	mu    sync.Mutex
	turns []TurnMetrics
}

func NewSessionAnalytics(profileName, logsDir string) (*SessionAnalytics, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create analytics directory: %w", err)
	}

	sessionID := "session_" + uuid.NewString()
	return &SessionAnalytics{
		sessionID:   sessionID,
		profileName: profileName,
		start:       time.Now(),
		jsonlPath:   filepath.Join(logsDir, sessionID+".jsonl"),
		summaryPath: filepath.Join(logsDir, sessionID+"_summary.json"),
	}, nil
}

func (s *SessionAnalytics) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// LogTurn appends one turn to the JSONL file. Write failures are logged and
// swallowed; analytics must never disturb the session.
func (s *SessionAnalytics) LogTurn(metrics TurnMetrics) {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.turns = append(s.turns, metrics)
	s.mu.Unlock()

	line, err := json.Marshal(metrics)
	if err != nil {
		logger.Warn("failed to marshal turn metrics", "error", err)
		return
	}

	file, err := os.OpenFile(s.jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("failed to open analytics file", "error", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		logger.Warn("failed to append turn metrics", "error", err)
	}
}

// Summary computes session aggregates over the turns logged so far.
func (s *SessionAnalytics) Summary() SessionSummary {
	if s == nil {
		return SessionSummary{}
	}

	s.mu.Lock()
	turns := make([]TurnMetrics, len(s.turns))
	copy(turns, s.turns)
	s.mu.Unlock()

	end := time.Now()
	summary := SessionSummary{
		SessionID:             s.sessionID,
		ProfileName:           s.profileName,
		SessionStart:          float64(s.start.UnixMilli()) / 1000,
		SessionEnd:            float64(end.UnixMilli()) / 1000,
		SessionDurationSec:    end.Sub(s.start).Seconds(),
		TotalTurns:            len(turns),
		EndReasonDistribution: map[string]int{},
	}
	if len(turns) == 0 {
		return summary
	}

	for _, turn := range turns {
		summary.AvgHumanSpeechSec += turn.HumanSpeechDurationSec
		summary.AvgSilenceBeforeEndMs += turn.SilenceBeforeEndMs
		summary.AvgTranscriptionMs += turn.TranscriptionMs
		summary.AvgGenerationMs += turn.GenerationMs
		summary.AvgTotalLatencyMs += turn.TotalLatencyMs
		summary.TotalInterruptAttempts += turn.InterruptAttempts
		summary.TotalInterruptsAccepted += turn.InterruptsAccepted
		summary.EndReasonDistribution[turn.EndReason]++
	}

	count := float64(len(turns))
	summary.AvgHumanSpeechSec /= count
	summary.AvgSilenceBeforeEndMs /= count
	summary.AvgTranscriptionMs /= count
	summary.AvgGenerationMs /= count
	summary.AvgTotalLatencyMs /= count
	if summary.TotalInterruptAttempts > 0 {
		summary.InterruptAcceptanceRate = float64(summary.TotalInterruptsAccepted) / float64(summary.TotalInterruptAttempts)
	}

	return summary
}

// Close writes the summary file.
func (s *SessionAnalytics) Close() error {
	if s == nil {
		return nil
	}

	summary, err := json.MarshalIndent(s.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}

	if err := os.WriteFile(s.summaryPath, summary, 0o644); err != nil {
		return fmt.Errorf("failed to write session summary: %w", err)
	}
	return nil
}
