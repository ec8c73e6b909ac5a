package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) Document {
	t.Helper()
	doc, err := DecodeDocument([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name    string
		value   []byte
		wantErr bool
	}{
		{"object", []byte(`{"attack_types":["Malware"]}`), false},
		{"empty object", []byte(`{}`), false},
		{"array", []byte(`["Malware"]`), true},
		{"null", []byte(`null`), true},
		{"truncated", []byte(`{"attack_types":`), true},
		{"invalid utf8", []byte{'{', '"', 0xff, '"', ':', '1', '}'}, true},
		{"empty", []byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDocument(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	r, err := Normalize(mustDecode(t, `{}`))
	require.NoError(t, err)

	for name, field := range map[string][]string{
		"attack_types":   r.AttackTypes,
		"attack_vectors": r.AttackVectors,
		"targets":        r.Targets,
		"locations":      r.Locations,
	} {
		assert.NotNil(t, field, name)
		assert.Empty(t, field, name)
	}
	assert.Equal(t, []string{"", ""}, r.Urgency)
	assert.False(t, r.ExpirationDate.Valid)
}

func TestNormalizeNullFieldsAreDefaulted(t *testing.T) {
	r, err := Normalize(mustDecode(t, `{"attack_types":null,"urgency":null,"expiration_date":null}`))
	require.NoError(t, err)
	assert.Equal(t, []string{}, r.AttackTypes)
	assert.Equal(t, []string{"", ""}, r.Urgency)
	assert.False(t, r.ExpirationDate.Valid)
}

func TestNormalizePassThrough(t *testing.T) {
	doc := mustDecode(t, `{
		"attack_types": ["Malware", "Trojan"],
		"attack_vectors": ["Email"],
		"urgency": ["Hot", "Critical", "extra"],
		"targets": ["UserFocused"],
		"locations": ["Germany", "France"],
		"expiration_date": "2025-03-01T12:30:45"
	}`)

	r, err := Normalize(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Malware", "Trojan"}, r.AttackTypes)
	assert.Equal(t, []string{"Email"}, r.AttackVectors)
	assert.Equal(t, []string{"Hot", "Critical", "extra"}, r.Urgency, "urgency arity is not adjusted")
	assert.Equal(t, []string{"UserFocused"}, r.Targets)
	assert.Equal(t, []string{"Germany", "France"}, r.Locations)
	assert.Equal(t, "2025-03-01 12:30:45", FormatDate(r.ExpirationDate))
}

func TestNormalizeWrongFieldType(t *testing.T) {
	_, err := Normalize(mustDecode(t, `{"targets":"UserFocused"}`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Normalize(mustDecode(t, `{"expiration_date":20250301}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNormalizeExpirationDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"2025-03-01", "2025-03-01 00:00:00"},
		{"2025-03-01T12:30:45", "2025-03-01 12:30:45"},
		{"2025-03-01 12:30:45", "2025-03-01 12:30:45"},
		{"2025-03-01T12:30:45.123456", "2025-03-01 12:30:45"},
		{"2025-03-01T12:30:45Z", "2025-03-01 12:30:45"},
		{"2025-03-01T12:30:45+05:30", "2025-03-01 12:30:45"},
		{"2025-03-01T12:30", "2025-03-01 12:30:00"},
		{" 2025-03-01T12:30:45 ", "2025-03-01 12:30:45"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			raw, _ := json.Marshal(map[string]string{"expiration_date": tt.in})
			r, err := Normalize(mustDecode(t, string(raw)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(r.ExpirationDate))
			assert.Equal(t, tt.want != "", r.ExpirationDate.Valid)
		})
	}
}

func TestNormalizeRejectsInvalidDate(t *testing.T) {
	for _, in := range []string{"not-a-date", "2025-13-01", "2025-02-30T00:00:00", "01/03/2025", "2025-03-01T25:00:00"} {
		t.Run(in, func(t *testing.T) {
			raw, _ := json.Marshal(map[string]any{
				"attack_types":    []string{"Malware"},
				"expiration_date": in,
			})
			r, err := Normalize(mustDecode(t, string(raw)))
			assert.ErrorIs(t, err, ErrInvalidDate)
			assert.Equal(t, Record{}, r, "no partial record")
		})
	}
}

func TestParseDateDropsZone(t *testing.T) {
	ts, err := ParseDate("2025-03-01T23:59:59-08:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01 23:59:59", FormatDate(ts))
	assert.Equal(t, "UTC", ts.Time.Location().String())
}
