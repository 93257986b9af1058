package llms

import "context"

// Stream is a lazily-evaluated token stream. Chunks returns a range-over-func
// iterator; consumers stop iteration by returning false from yield, which is
// also how cancellation propagates mid-generation.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
