package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrNotPulse = errors.New("payload is not an OTX pulse page")

// PulsePage is one page of the OTX "subscribed pulses" API.
type PulsePage struct {
	Results *[]Pulse `json:"results"`
	Next    *string  `json:"next"`
	Count   int64    `json:"count"`
}

// Pulse is a single OTX pulse. Only fields used for enrichment are decoded.
type Pulse struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Tags              []string    `json:"tags"`
	TargetedCountries []string    `json:"targeted_countries"`
	Indicators        []Indicator `json:"indicators"`
}

type Indicator struct {
	Role        *string `json:"role"`
	Expiration  *string `json:"expiration"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	IsActive    int     `json:"is_active"`
}

// EnrichedThreat is the message published on the enriched records topic.
type EnrichedThreat struct {
	AttackTypes    []string  `json:"attack_types"`
	AttackVectors  []string  `json:"attack_vectors"`
	Urgency        [2]string `json:"urgency"`
	Targets        []string  `json:"targets"`
	Locations      []string  `json:"locations"`
	ExpirationDate string    `json:"expiration_date"`
}

// expirationLayout is the format of EnrichedThreat.ExpirationDate.
const expirationLayout = "2006-01-02T15:04:05"

// Enrich classifies every pulse of an OTX page into an EnrichedThreat.
// Payloads without a results array (for instance feed error payloads) fail with ErrNotPulse.
func Enrich(value []byte) ([]EnrichedThreat, error) {
	var page PulsePage
	if err := json.Unmarshal(value, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if page.Results == nil {
		return nil, ErrNotPulse
	}

	threats := make([]EnrichedThreat, 0, len(*page.Results))
	for _, p := range *page.Results {
		threats = append(threats, EnrichPulse(p))
	}
	return threats, nil
}

// EnrichPulse derives attack types, vectors, urgency, targets, locations and
// the latest indicator expiration from a single pulse.
func EnrichPulse(p Pulse) EnrichedThreat {
	locations := slices.Clone(p.TargetedCountries)
	if len(locations) == 0 {
		locations = []string{Unknown}
	}

	return EnrichedThreat{
		AttackTypes:    classify(pulseText(p, true, true), attackTypeKeywords),
		AttackVectors:  classify(pulseText(p, true, false), attackVectorKeywords),
		Urgency:        urgency(p),
		Targets:        classify(pulseText(p, true, false), targetKeywords),
		Locations:      locations,
		ExpirationDate: latestExpiration(p),
	}
}

// pulseText flattens the searchable text of a pulse to lower case.
func pulseText(p Pulse, indicators, roles bool) string {
	parts := []string{p.Name, p.Description}
	parts = append(parts, p.Tags...)
	if indicators {
		for _, ind := range p.Indicators {
			parts = append(parts, ind.Title, ind.Description)
			if roles && ind.Role != nil {
				parts = append(parts, *ind.Role)
			}
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func classify(text string, table []keyword) []string {
	var found []string
	for _, kw := range table {
		if strings.Contains(text, kw.term) && !slices.Contains(found, kw.category) {
			found = append(found, kw.category)
		}
	}
	if len(found) == 0 {
		return []string{Unknown}
	}
	return found
}

func urgency(p Pulse) [2]string {
	tipper := 0
	for _, ind := range p.Indicators {
		if ind.IsActive == 1 {
			tipper++
		} else {
			tipper--
		}
	}

	heat := Cold
	if tipper > 0 {
		heat = Hot
	}

	severity := Low
	text := pulseText(p, false, false)
	for _, kw := range severityKeywords {
		if strings.Contains(text, kw.term) && severityRank[kw.category] > severityRank[severity] {
			severity = kw.category
		}
	}
	return [2]string{heat, severity}
}

func latestExpiration(p Pulse) string {
	var latest time.Time
	for _, ind := range p.Indicators {
		if ind.Expiration == nil {
			continue
		}
		t, err := parseISO8601(strings.TrimSpace(*ind.Expiration))
		if err != nil {
			continue
		}
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		if wall.After(latest) {
			latest = wall
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.Format(expirationLayout)
}
