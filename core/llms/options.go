package llms

import "slices"

type PromptOptions struct {
	Instructions string
	History      []Message
	MaxTokens    int
	Temperature  *float64
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) { o.Instructions = instructions }
}

func WithHistory(history []Message) PromptOption {
	return func(o *PromptOptions) { o.History = slices.Clone(history) }
}

func WithMaxTokens(maxTokens int) PromptOption {
	return func(o *PromptOptions) { o.MaxTokens = maxTokens }
}

func WithTemperature(temperature float64) PromptOption {
	return func(o *PromptOptions) { o.Temperature = &temperature }
}
