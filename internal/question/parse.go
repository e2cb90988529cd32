package question

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ErrUnparsable indicates no JSON payload could be extracted from a model
// response. Callers fall back to deterministic synthesis; this error never
// propagates past the generator.
var ErrUnparsable = errors.New("no JSON payload in model response")

// extractItems pulls a list of JSON objects out of a raw model response.
// Models wrap payloads unpredictably, so extraction is tolerant:
//
//  1. markdown code fences are stripped,
//  2. the result is parsed as a JSON array,
//  3. failing that, as a single object, unwrapping a "questions" key if
//     present, otherwise treating the object as a one-element list.
//
// Returns ErrUnparsable when none of the above yields objects.
func extractItems(content string) ([]map[string]any, error) {
	text := stripCodeFences(content)
	if text == "" {
		return nil, ErrUnparsable
	}

	var list []map[string]any
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, ErrUnparsable
	}

	if nested, ok := obj["questions"]; ok {
		items, ok := toObjectList(nested)
		if !ok {
			return nil, ErrUnparsable
		}
		return items, nil
	}

	return []map[string]any{obj}, nil
}

// extractObject pulls a single JSON object out of a raw model response,
// with the same fence tolerance as extractItems.
func extractObject(content string) (map[string]any, error) {
	text := stripCodeFences(content)
	if text == "" {
		return nil, ErrUnparsable
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, ErrUnparsable
	}
	return obj, nil
}

// toObjectList converts a decoded JSON value to a list of objects.
func toObjectList(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, obj)
	}
	return items, true
}

// stripCodeFences removes ```json ... ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// stringField returns the string value of key, or "" when absent or not a
// string.
func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// intField returns the integer value of key. JSON numbers decode as
// float64; other types report absence.
func intField(obj map[string]any, key string) (int, bool) {
	f, ok := obj[key].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// boolField returns the boolean value of key.
func boolField(obj map[string]any, key string) (bool, bool) {
	b, ok := obj[key].(bool)
	return b, ok
}

// questionTextFallback searches obj for an alternative key carrying the
// question text: any key containing "question" (other than the numeric
// question_number) with a string value. Keys are visited in sorted order
// so repair is deterministic.
func questionTextFallback(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "question_number" || !strings.Contains(strings.ToLower(k), "question") {
			continue
		}
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstWord returns the first whitespace-separated token of s, or fallback
// when s is blank. Used to seed filler and fallback question templates.
func firstWord(s, fallback string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return fallback
	}
	return fields[0]
}

// truncateForLog shortens s to at most n bytes for logging.
func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
