package orchestration

import (
	"sync"

	"github.com/voxloop/duplex-core/core/llms"
)

// maxMemoryTurns bounds the ephemeral conversation history fed back into the
// model; older messages fall off the front.
const maxMemoryTurns = 24

type conversationMemory struct {
	mu       sync.Mutex
	messages []llms.Message
}

func (m *conversationMemory) add(message llms.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, message)
	if len(m.messages) > maxMemoryTurns {
		m.messages = m.messages[len(m.messages)-maxMemoryTurns:]
	}
}

func (m *conversationMemory) history() []llms.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]llms.Message, len(m.messages))
	copy(history, m.messages)
	return history
}

func (m *conversationMemory) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func (m *conversationMemory) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
