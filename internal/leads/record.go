package leads

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// record is one backend JSON object decoded lazily so the normalizers can
// accept the few known key variants and collect keys they do not recognise.
type record map[string]json.RawMessage

func decodeRecords(raw json.RawMessage) ([]record, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (r record) has(key string) bool {
	raw, ok := r[key]
	return ok && !isNull(raw)
}

// str returns the first non-empty value among keys, rendered as text.
func (r record) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		if value := scalarText(raw); value != "" {
			return value
		}
	}
	return ""
}

func (r record) integer(keys ...string) int {
	for _, key := range keys {
		text := r.str(key)
		if text == "" {
			continue
		}
		if n, err := strconv.Atoi(text); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return int(f)
		}
	}
	return 0
}

func (r record) sub(keys ...string) record {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || isNull(raw) {
			continue
		}
		var out record
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return record{}
}

func (r record) list(keys ...string) ([]record, bool) {
	for _, key := range keys {
		if !r.has(key) {
			continue
		}
		items, err := decodeRecords(r[key])
		if err != nil {
			continue
		}
		return items, true
	}
	return nil, false
}

func (r record) strings(key string) []string {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if single := scalarText(raw); single != "" {
			return []string{single}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text := scalarText(item); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// flat renders every key of the object as text, nested values as compact JSON.
func (r record) flat() map[string]string {
	if len(r) == 0 {
		return nil
	}
	out := make(map[string]string, len(r))
	for key, raw := range r {
		out[key] = scalarText(raw)
	}
	return out
}

func (r record) extras(known map[string]struct{}) map[string]string {
	var out map[string]string
	for key, raw := range r {
		if _, ok := known[key]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[key] = scalarText(raw)
	}
	return out
}

func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed)
		}
		return buf.String()
	default:
		return string(trimmed)
	}
}

func yesNo(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "y", "yes", "true", "1":
		return "Y"
	default:
		return "N"
	}
}

func keySet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		out[key] = struct{}{}
	}
	return out
}
