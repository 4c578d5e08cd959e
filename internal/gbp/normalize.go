package gbp

import (
	"encoding/json"
	"strings"
	"time"
)

var starEnum = map[string]int{
	"STAR_ONE":   1,
	"STAR_TWO":   2,
	"STAR_THREE": 3,
	"STAR_FOUR":  4,
	"STAR_FIVE":  5,
	"ONE":        1,
	"TWO":        2,
	"THREE":      3,
	"FOUR":       4,
	"FIVE":       5,
}

// parseStarRating accepts the three shapes the API has been observed to
// send: a plain number, an enum string like "STAR_FOUR", or text with an
// embedded digit. Returns 0 when nothing usable is present.
func parseStarRating(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		r := int(num)
		if r >= 1 && r <= 5 {
			return r
		}
		return 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	if r, ok := starEnum[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return r
	}
	for _, ch := range s {
		if ch >= '1' && ch <= '5' {
			return int(ch - '0')
		}
	}
	return 0
}

// externalID extracts the trailing resource ID from a resource name like
// "accounts/1/locations/2/reviews/3". Empty when the name is unusable.
func externalID(name string) string {
	name = strings.TrimSuffix(name, "/")
	idx := strings.LastIndex(name, "/")
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatAddress(a *apiAddress) *string {
	if a == nil {
		return nil
	}
	parts := append([]string{}, a.AddressLines...)
	if a.Locality != "" {
		parts = append(parts, a.Locality)
	}
	if a.PostalCode != "" {
		parts = append(parts, a.PostalCode)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, ", ")
	return &joined
}
