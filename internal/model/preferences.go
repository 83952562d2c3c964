package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// Recognised preference keys. These are the only keys the application ever
// writes; anything else found in a stored document is carried along untouched.
const (
	PrefTimers          = "timers"
	PrefSound           = "sound"
	PrefTheme           = "theme"
	PrefDisplayGreeting = "displayGreeting"
	PrefClockFont       = "clockFont"
)

// Preferences is the per-user settings document of the timer front end.
//
// Each recognised key is an optional field: nil means "not set". The object
// valued fields (Timers, Sound) and DisplayGreeting are kept as raw JSON so a
// value the server never touched is written back exactly as it was stored.
//
// Extra holds keys the application does not recognise, plus a recognised
// string key whose stored value was not a string.
type Preferences struct {
	Timers          json.RawMessage
	Sound           json.RawMessage
	Theme           *string
	DisplayGreeting json.RawMessage
	ClockFont       *string

	Extra map[string]json.RawMessage
}

// Clone returns a deep copy, so callers can derive a new document without
// aliasing the byte slices or the Extra map of the original.
func (p Preferences) Clone() Preferences {
	out := Preferences{
		Timers:          cloneRaw(p.Timers),
		Sound:           cloneRaw(p.Sound),
		DisplayGreeting: cloneRaw(p.DisplayGreeting),
		Theme:           cloneString(p.Theme),
		ClockFont:       cloneString(p.ClockFont),
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = cloneRaw(v)
		}
	}
	return out
}

// Keys returns the set keys in sorted order.
func (p Preferences) Keys() []string {
	m := p.toMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the raw JSON value stored under key, if any.
func (p Preferences) Get(key string) (json.RawMessage, bool) {
	v, ok := p.toMap()[key]
	return v, ok
}

func (p Preferences) toMap() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(p.Extra)+5)
	for k, v := range p.Extra {
		m[k] = v
	}
	if p.Timers != nil {
		m[PrefTimers] = p.Timers
	}
	if p.Sound != nil {
		m[PrefSound] = p.Sound
	}
	if p.DisplayGreeting != nil {
		m[PrefDisplayGreeting] = p.DisplayGreeting
	}
	if p.Theme != nil {
		m[PrefTheme] = mustMarshalString(*p.Theme)
	}
	if p.ClockFont != nil {
		m[PrefClockFont] = mustMarshalString(*p.ClockFont)
	}
	return m
}

// MarshalJSON always produces an object; an empty document is "{}".
func (p Preferences) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toMap())
}

// UnmarshalJSON accepts an object or null (treated as empty).
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}

	*p = Preferences{}
	for k, v := range raw {
		switch k {
		case PrefTimers:
			p.Timers = v
		case PrefSound:
			p.Sound = v
		case PrefDisplayGreeting:
			p.DisplayGreeting = v
		case PrefTheme, PrefClockFont:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				p.setExtra(k, v)
				continue
			}
			if k == PrefTheme {
				p.Theme = &s
			} else {
				p.ClockFont = &s
			}
		default:
			p.setExtra(k, v)
		}
	}
	return nil
}

func (p *Preferences) setExtra(k string, v json.RawMessage) {
	if p.Extra == nil {
		p.Extra = make(map[string]json.RawMessage)
	}
	p.Extra[k] = v
}

// Value implements driver.Valuer; the document is stored as JSON text.
// A string (not []byte) is returned so Postgres drivers send it as text that
// the server casts to jsonb, rather than as bytea.
func (p Preferences) Value() (driver.Value, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for TEXT (SQLite) and JSONB (Postgres) columns.
func (p *Preferences) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Preferences{}
		return nil
	case string:
		return p.UnmarshalJSON([]byte(v))
	case []byte:
		return p.UnmarshalJSON(v)
	default:
		return fmt.Errorf("preferences: cannot scan %T", src)
	}
}

// DayList is the ordered set of ISO dates (YYYY-MM-DD) on which a user logged
// study time. Order is insertion order; duplicates are never stored.
type DayList []string

// Contains reports whether day has already been logged.
func (d DayList) Contains(day string) bool {
	for _, existing := range d {
		if existing == day {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer. A nil list is stored as "[]", not "null".
func (d DayList) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *DayList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*d = DayList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("days_logged: cannot scan %T", src)
	}

	var days []string
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("days_logged: %w", err)
	}
	if days == nil {
		days = []string{}
	}
	*d = days
	return nil
}

// IsJSONObject reports whether raw is a JSON object (after whitespace).
func IsJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s) // marshalling a string cannot fail
	return b
}
