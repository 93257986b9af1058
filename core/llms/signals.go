package llms

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Responses may carry out-of-band annotations the engine consumes for phase
// transitions and observability:
//
//	<signals>
//	{"custom.exam.greeting_complete": {"note": "moving on"}}
//	</signals>
//
// Annotations are best-effort and optional: malformed blocks are discarded
// without error so a confused model can never destabilize the engine.
var signalBlockPattern = regexp.MustCompile(`(?is)<signals>\s*(.*?)\s*</signals>`)

// ExtractSignals collects every signal annotation in the response. Later
// blocks override earlier entries with the same name.
func ExtractSignals(response string) map[string]map[string]any {
	extracted := map[string]map[string]any{}

	for _, match := range signalBlockPattern.FindAllStringSubmatch(response, -1) {
		block := strings.TrimSpace(match[1])
		if block == "" {
			continue
		}

		var parsed map[string]json.RawMessage
		if err := json.Unmarshal([]byte(block), &parsed); err != nil {
			continue
		}

		for name, rawPayload := range parsed {
			if name == "" {
				continue
			}

			payload := map[string]any{}
			if len(rawPayload) > 0 {
				if err := json.Unmarshal(rawPayload, &payload); err != nil {
					// Entry value is not an object; drop just this entry.
					continue
				}
			}
			extracted[name] = payload
		}
	}

	return extracted
}

// SignalNames returns the names of every annotation in the response.
func SignalNames(response string) []string {
	extracted := ExtractSignals(response)
	names := make([]string, 0, len(extracted))
	for name := range extracted {
		names = append(names, name)
	}
	return names
}

// StripSignals removes annotation blocks so they are never spoken aloud.
func StripSignals(response string) string {
	return strings.TrimSpace(signalBlockPattern.ReplaceAllString(response, ""))
}
