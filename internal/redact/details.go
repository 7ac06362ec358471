package redact

import "encoding/json"

// Details is the sanitized key/value detail map attached to an audit event.
// It is immutable: With and WithAll return a new value instead of mutating in
// place, which preserves the append-only nature of the owning event. Every
// value passes through Value on insertion, so a Details can never hold a raw
// email, card, or SSN pattern.
type Details struct {
	m map[string]any
}

// NewDetails returns an empty detail map.
func NewDetails() Details {
	return Details{}
}

// DetailsFrom builds a Details from a raw map, sanitizing every value.
func DetailsFrom(m map[string]any) Details {
	if len(m) == 0 {
		return Details{}
	}
	return Details{m: Map(m)}
}

// With returns a copy with key set to the sanitized value.
func (d Details) With(key string, value any) Details {
	next := make(map[string]any, len(d.m)+1)
	for k, v := range d.m {
		next[k] = v
	}
	next[key] = Value(value)
	return Details{m: next}
}

// WithAll returns a copy with every entry of m merged in, sanitized.
func (d Details) WithAll(m map[string]any) Details {
	if len(m) == 0 {
		return d
	}
	next := make(map[string]any, len(d.m)+len(m))
	for k, v := range d.m {
		next[k] = v
	}
	for k, v := range m {
		next[k] = Value(v)
	}
	return Details{m: next}
}

func (d Details) Get(key string) (any, bool) {
	v, ok := d.m[key]
	return v, ok
}

// GetString returns the value for key rendered as a string, or "" if absent.
func (d Details) GetString(key string) string {
	v, ok := d.m[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func (d Details) Len() int { return len(d.m) }

// AsMap returns a defensive copy of the underlying map.
func (d Details) AsMap() map[string]any {
	out := make(map[string]any, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the map, falling back to an empty object if encoding
// fails. Redaction failures are impossible by contract; a malformed value is
// stored best-effort rather than aborting the write.
func (d Details) MarshalJSON() ([]byte, error) {
	if len(d.m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(d.m)
	if err != nil {
		return []byte("{}"), nil
	}
	return b, nil
}

// UnmarshalJSON decodes and re-sanitizes: persisted values may already be
// clean, but the read path does not assume it.
func (d *Details) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		d.m = nil
		return nil
	}
	d.m = Map(raw)
	return nil
}
