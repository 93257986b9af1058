package llms

import (
	"slices"
	"testing"
)

func TestExtractSignalsParsesBlocksWithPayloads(t *testing.T) {
	response := `The greeting is done.
<signals>
{"custom.exam.greeting_complete": {"note": "moving on"}, "topic.change": {}}
</signals>`

	extracted := ExtractSignals(response)
	if len(extracted) != 2 {
		t.Fatalf("expected 2 signals, got %v", extracted)
	}
	if extracted["custom.exam.greeting_complete"]["note"] != "moving on" {
		t.Fatalf("payload did not survive extraction: %v", extracted)
	}
	if payload, ok := extracted["topic.change"]; !ok || len(payload) != 0 {
		t.Fatalf("empty payload signal missing or polluted: %v", extracted)
	}
}

func TestExtractSignalsDiscardsMalformedBlocks(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"broken json", `<signals>{"a": }</signals>`},
		{"not an object", `<signals>["a", "b"]</signals>`},
		{"empty block", `<signals>   </signals>`},
		{"unterminated block", `<signals>{"a": {}}`},
		{"no block at all", "just a spoken sentence"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if extracted := ExtractSignals(tc.response); len(extracted) != 0 {
				t.Fatalf("expected nothing, got %v", extracted)
			}
		})
	}
}

func TestExtractSignalsDropsOnlyNonObjectEntries(t *testing.T) {
	response := `<signals>{"good.signal": {"k": 1}, "bad.signal": "oops"}</signals>`

	extracted := ExtractSignals(response)
	if _, ok := extracted["good.signal"]; !ok {
		t.Fatalf("valid entry was lost alongside the invalid one: %v", extracted)
	}
	if _, ok := extracted["bad.signal"]; ok {
		t.Fatalf("entry with a non-object payload must be dropped: %v", extracted)
	}
}

func TestExtractSignalsLaterBlocksOverrideEarlierOnes(t *testing.T) {
	response := `<signals>{"topic.change": {"to": "part1"}}</signals>
Some speech in between.
<signals>{"topic.change": {"to": "part2"}}</signals>`

	extracted := ExtractSignals(response)
	if extracted["topic.change"]["to"] != "part2" {
		t.Fatalf("expected the later block to win, got %v", extracted)
	}
}

func TestSignalNamesListsEveryAnnotation(t *testing.T) {
	response := `<signals>{"a.one": {}, "b.two": {}}</signals>`

	names := SignalNames(response)
	slices.Sort(names)
	if !slices.Equal(names, []string{"a.one", "b.two"}) {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestStripSignalsRemovesBlocksAndTrims(t *testing.T) {
	response := "That is all from me.  \n<signals>\n{\"exam.finished\": {}}\n</signals>\n"

	if got := StripSignals(response); got != "That is all from me." {
		t.Fatalf("expected only the spoken text, got %q", got)
	}

	if got := StripSignals("no annotations here"); got != "no annotations here" {
		t.Fatalf("text without blocks must pass through, got %q", got)
	}
}

func TestStripSignalsHandlesCaseInsensitiveTags(t *testing.T) {
	response := `Done. <SIGNALS>{"x.y": {}}</SIGNALS>`

	if got := StripSignals(response); got != "Done." {
		t.Fatalf("expected uppercase tags to be stripped, got %q", got)
	}
}
