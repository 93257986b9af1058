// Package events defines the typed contract for everything that flows through
// the dispatcher queue.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - user_input.*: voice activity and transcripts from the capture/ASR side.
//   - assistant_speech.*: sentence streaming and playback completion from the
//     generation/playback side.
//   - turn_state.*: turn lifecycle boundaries.
//   - clock.*: dispatcher-synthesized time events.
//   - phase.*: phase graph control.
//
// Every event is an immutable value: constructed once, never mutated after
// enqueue. Reducer output never feeds back into the same event.
package events
