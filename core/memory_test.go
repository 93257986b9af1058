package orchestration

import (
	"fmt"
	"testing"

	"github.com/voxloop/duplex-core/core/llms"
)

func TestConversationMemoryTrimsOldestMessages(t *testing.T) {
	memory := &conversationMemory{}

	for i := 0; i < maxMemoryTurns+5; i++ {
		memory.add(llms.Message{Role: llms.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	if memory.len() != maxMemoryTurns {
		t.Fatalf("expected memory to hold %d messages, got %d", maxMemoryTurns, memory.len())
	}

	history := memory.history()
	if history[0].Content != "message 5" {
		t.Fatalf("expected oldest surviving message to be %q, got %q", "message 5", history[0].Content)
	}
	if history[len(history)-1].Content != fmt.Sprintf("message %d", maxMemoryTurns+4) {
		t.Fatalf("expected newest message to survive, got %q", history[len(history)-1].Content)
	}
}

func TestConversationMemoryHistoryIsACopy(t *testing.T) {
	memory := &conversationMemory{}
	memory.add(llms.Message{Role: llms.RoleAssistant, Content: "original"})

	history := memory.history()
	history[0].Content = "mutated"

	if memory.history()[0].Content != "original" {
		t.Fatalf("mutating the returned history leaked into the memory")
	}
}

func TestConversationMemoryClear(t *testing.T) {
	memory := &conversationMemory{}
	memory.add(llms.Message{Role: llms.RoleUser, Content: "hello"})
	memory.clear()

	if memory.len() != 0 {
		t.Fatalf("expected empty memory after clear, got %d messages", memory.len())
	}
}
