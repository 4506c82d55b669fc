package normalize

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// rawJSONer is implemented by SDK response types that keep the wire payload.
type rawJSONer interface {
	RawJSON() string
}

// document converts raw into a JSON document. It accepts wire bytes, strings,
// SSE frames, SDK types exposing RawJSON, and anything json.Marshal accepts.
func document(raw any) (doc []byte, ok bool) {
	defer func() {
		if recover() != nil {
			doc, ok = nil, false
		}
	}()

	switch typed := raw.(type) {
	case nil:
		return nil, false
	case []byte:
		doc = typed
	case json.RawMessage:
		doc = typed
	case string:
		doc = []byte(typed)
	case gjson.Result:
		doc = []byte(typed.Raw)
	case rawJSONer:
		if payload := typed.RawJSON(); strings.TrimSpace(payload) != "" {
			doc = []byte(payload)
			break
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, false
		}
		doc = encoded
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, false
		}
		doc = encoded
	}

	if payload := parseSSEPayload(doc); len(payload) > 0 {
		doc = payload
	}
	if !gjson.ValidBytes(doc) {
		return nil, false
	}
	return doc, true
}

func parseSSEPayload(chunk []byte) []byte {
	text := string(chunk)
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "data:") && !strings.HasPrefix(trimmed, "event:") {
		return nil
	}

	lines := strings.Split(text, "\n")
	dataLines := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if value == "" || value == "[DONE]" {
			continue
		}
		dataLines = append(dataLines, value)
	}
	if len(dataLines) == 0 {
		return []byte("{}")
	}
	// A transport chunk can carry several events; the last JSON payload has
	// the freshest model and usage fields.
	for i := len(dataLines) - 1; i >= 0; i-- {
		if strings.HasPrefix(dataLines[i], "{") {
			return []byte(dataLines[i])
		}
	}
	return []byte(dataLines[len(dataLines)-1])
}

// firstInt returns the first path holding a number.
func firstInt(doc []byte, paths ...string) (int, bool) {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		if value.Type == gjson.Number {
			return int(value.Int()), true
		}
	}
	return 0, false
}

// firstFloat returns the first path holding a number.
func firstFloat(doc []byte, paths ...string) (float64, bool) {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		if value.Type == gjson.Number {
			return value.Float(), true
		}
	}
	return 0, false
}

// firstString returns the first path holding a non-blank string.
func firstString(doc []byte, paths ...string) string {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		if value.Type != gjson.String {
			continue
		}
		if text := strings.TrimSpace(value.String()); text != "" {
			return text
		}
	}
	return ""
}

// firstText returns the first path that yields text. Array results, such as
// "content.#.text", are joined with sep.
func firstText(doc []byte, sep string, paths ...string) string {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		if text := joinText(value, sep); text != "" {
			return text
		}
	}
	return ""
}

func joinText(value gjson.Result, sep string) string {
	switch {
	case value.Type == gjson.String:
		return value.String()
	case value.IsArray():
		parts := make([]string, 0, len(value.Array()))
		for _, item := range value.Array() {
			if text := joinText(item, sep); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, sep)
	case value.IsObject():
		if text := value.Get("text"); text.Type == gjson.String {
			return text.String()
		}
		return ""
	default:
		return ""
	}
}

// firstStrings returns the first path holding a string or list of strings.
func firstStrings(doc []byte, paths ...string) []string {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		switch {
		case value.Type == gjson.String && value.String() != "":
			return []string{value.String()}
		case value.IsArray():
			var out []string
			for _, item := range value.Array() {
				if item.Type == gjson.String {
					out = append(out, item.String())
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func firstBool(doc []byte, paths ...string) bool {
	for _, path := range paths {
		value := gjson.GetBytes(doc, path)
		if value.IsBool() {
			return value.Bool()
		}
	}
	return false
}
