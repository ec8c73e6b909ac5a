package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

var (
	ErrDecode      = errors.New("decode error")
	ErrInvalidDate = errors.New("invalid date")
)

// DateLayout is the text format of the store's timestamp column.
const DateLayout = "2006-01-02 15:04:05"

// Document is a JSON object decoded from a message value, keyed by field name.
type Document map[string]json.RawMessage

// Record is a normalized enriched threat record, ready to be persisted.
// Sequence fields are never nil.
type Record struct {
	AttackTypes    []string
	AttackVectors  []string
	Urgency        []string
	Targets        []string
	Locations      []string
	ExpirationDate pgtype.Timestamp
}

// DecodeDocument validates value as UTF-8 and parses it as a JSON object.
func DecodeDocument(value []byte) (Document, error) {
	if !utf8.Valid(value) {
		return nil, fmt.Errorf("%w: value is not valid UTF-8", ErrDecode)
	}

	var doc Document
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: value is not a JSON object", ErrDecode)
	}
	return doc, nil
}

// Normalize extracts the enriched record fields from doc, defaulting missing ones.
// A non-empty expiration_date that is not ISO-8601 rejects the record with ErrInvalidDate.
func Normalize(doc Document) (Record, error) {
	var (
		r   Record
		err error
	)

	if r.AttackTypes, err = stringsField(doc, "attack_types", []string{}); err != nil {
		return Record{}, err
	}
	if r.AttackVectors, err = stringsField(doc, "attack_vectors", []string{}); err != nil {
		return Record{}, err
	}
	if r.Urgency, err = stringsField(doc, "urgency", []string{"", ""}); err != nil {
		return Record{}, err
	}
	if r.Targets, err = stringsField(doc, "targets", []string{}); err != nil {
		return Record{}, err
	}
	if r.Locations, err = stringsField(doc, "locations", []string{}); err != nil {
		return Record{}, err
	}

	date, err := stringField(doc, "expiration_date")
	if err != nil {
		return Record{}, err
	}
	if r.ExpirationDate, err = ParseDate(date); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ParseDate converts an ISO-8601 string into a timestamp without time zone.
// Blank input yields a NULL timestamp. The wall clock of the input is kept and
// any UTC offset is dropped; sub-second precision is truncated.
func ParseDate(s string) (pgtype.Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Timestamp{}, nil
	}

	t, err := parseISO8601(s)
	if err != nil {
		return pgtype.Timestamp{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return pgtype.Timestamp{Time: wall, Valid: true}, nil
}

// FormatDate renders ts in DateLayout, or "" for NULL.
func FormatDate(ts pgtype.Timestamp) string {
	if !ts.Valid {
		return ""
	}
	return ts.Time.Format(DateLayout)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

func parseISO8601(s string) (time.Time, error) {
	// date and time may be separated by a space instead of 'T'
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}

	var firstErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringsField(doc Document, key string, def []string) ([]string, error) {
	raw, ok := doc[key]
	if !ok || isNull(raw) {
		return def, nil
	}

	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", ErrDecode, key, err)
	}
	return v, nil
}

func stringField(doc Document, key string) (string, error) {
	raw, ok := doc[key]
	if !ok || isNull(raw) {
		return "", nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: field %s: %v", ErrDecode, key, err)
	}
	return v, nil
}
