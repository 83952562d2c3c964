package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferences_EmptyMarshalsAsObject(t *testing.T) {
	b, err := json.Marshal(Preferences{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestPreferences_UnknownKeysSurvive(t *testing.T) {
	stored := `{"theme":"dark","legacyLayout":{"cols":3},"timers":{"pomodoro":25}}`

	var p Preferences
	require.NoError(t, json.Unmarshal([]byte(stored), &p))

	require.NotNil(t, p.Theme)
	assert.Equal(t, "dark", *p.Theme)
	assert.Contains(t, p.Extra, "legacyLayout")

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(out))
}

func TestPreferences_NonStringThemeKeptAsExtra(t *testing.T) {
	var p Preferences
	require.NoError(t, json.Unmarshal([]byte(`{"theme":42}`), &p))

	assert.Nil(t, p.Theme)
	raw, ok := p.Get(PrefTheme)
	require.True(t, ok, "stored theme must not be dropped")
	assert.JSONEq(t, `42`, string(raw))
}

func TestPreferences_NullIsEmpty(t *testing.T) {
	var p Preferences
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Empty(t, p.Keys())
}

func TestPreferences_RejectsNonObject(t *testing.T) {
	var p Preferences
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))
}

func TestPreferences_CloneDoesNotAlias(t *testing.T) {
	theme := "light"
	orig := Preferences{
		Timers: json.RawMessage(`{"pomodoro":25}`),
		Theme:  &theme,
		Extra:  map[string]json.RawMessage{"x": json.RawMessage(`1`)},
	}

	c := orig.Clone()
	c.Timers[2] = 'P'
	*c.Theme = "dark"
	c.Extra["y"] = json.RawMessage(`2`)

	assert.Equal(t, `{"pomodoro":25}`, string(orig.Timers))
	assert.Equal(t, "light", *orig.Theme)
	assert.NotContains(t, orig.Extra, "y")
}

func TestPreferences_ScanTextAndBytes(t *testing.T) {
	for _, src := range []any{`{"clockFont":"mono"}`, []byte(`{"clockFont":"mono"}`)} {
		var p Preferences
		require.NoError(t, p.Scan(src))
		require.NotNil(t, p.ClockFont)
		assert.Equal(t, "mono", *p.ClockFont)
	}

	var p Preferences
	assert.Error(t, p.Scan(12))
}

func TestDayList_ValueAndScan(t *testing.T) {
	v, err := DayList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var d DayList
	require.NoError(t, d.Scan(`["2024-01-01","2024-01-02"]`))
	assert.Len(t, d, 2)
	assert.True(t, d.Contains("2024-01-02"))
	assert.False(t, d.Contains("2024-01-03"))

	require.NoError(t, d.Scan(nil))
	assert.NotNil(t, d)
	assert.Empty(t, d)
}

func TestUser_NameOrNil(t *testing.T) {
	u := &User{Username: "alice"}
	assert.Nil(t, u.NameOrNil())

	u.Name = "Alice Liddell"
	require.NotNil(t, u.NameOrNil())
	assert.Equal(t, "Alice Liddell", *u.NameOrNil())
}
