package orchestration

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCountSpokenWordsIgnoresNonLexicalTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"hello there", 2},
		{"uh, okay then.", 3},
		{"... --- 123", 0},
		{"so 2 of them", 3},
	}

	for _, tc := range cases {
		if got := countSpokenWords(tc.text); got != tc.want {
			t.Fatalf("countSpokenWords(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestConcatFramesPreservesOrderAndBytes(t *testing.T) {
	frames := [][]byte{{1, 2}, {3}, nil, {4, 5, 6}}

	got := concatFrames(frames)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected concatenation: %v", got)
	}

	if got := concatFrames(nil); len(got) != 0 {
		t.Fatalf("expected empty output for no frames, got %v", got)
	}
}

func TestPanicSafeWorkerConvertsPanicsToErrors(t *testing.T) {
	run := panicSafeNamedWorker("test", func(context.Context) error {
		panic("boom")
	})

	err := run(context.Background())
	if err == nil {
		t.Fatalf("expected the panic to surface as an error")
	}
}

func TestPanicSafeWorkerWrapsReturnedErrors(t *testing.T) {
	cause := errors.New("backend unavailable")
	run := panicSafeNamedWorker("test", func(context.Context) error {
		return cause
	})

	err := run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to be preserved, got %v", err)
	}
}

func TestPanicSafeWorkerPassesThroughSuccess(t *testing.T) {
	run := panicSafeNamedWorker("test", func(context.Context) error { return nil })

	if err := run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
