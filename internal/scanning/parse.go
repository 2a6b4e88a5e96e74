package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// extraction is the raw JSON payload the model is asked to produce.
type extraction struct {
	Vendor   *string  `json:"vendor"`
	Date     *string  `json:"date"`
	Amount   *float64 `json:"amount"`
	Currency *string  `json:"currency"`
	Category *string  `json:"category"`
}

// parseExtractionJSON parses the JSON object out of a model response.
// Models wrap output in markdown fences or chatter around it, so the text
// is trimmed down to the first '{' through the last '}' before decoding.
func parseExtractionJSON(text string) (*extraction, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var payload extraction
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if payload.Vendor != nil {
		vendor := strings.TrimSpace(*payload.Vendor)
		if vendor == "" {
			payload.Vendor = nil
		} else {
			payload.Vendor = &vendor
		}
	}
	if payload.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*payload.Currency))
		if currency == "" {
			payload.Currency = nil
		} else {
			payload.Currency = &currency
		}
	}

	return &payload, nil
}

// dateFormats are the formats models emit despite being asked for ISO 8601.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// parseExtractedDate parses the date field of a model response. Unparseable
// dates are dropped rather than guessed at; the pipeline already resolved a
// transaction date from the media metadata.
func parseExtractedDate(value *string) *time.Time {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, strings.TrimSpace(*value)); err == nil {
			return &d
		}
	}
	return nil
}

// buildResult converts a model response into a Result. A malformed response
// is treated as "no data extracted", not a crash: the raw text is preserved
// and the structured fields stay nil.
func buildResult(responseText string) *Result {
	result := &Result{
		RawText:    responseText,
		Confidence: 1,
	}
	payload, err := parseExtractionJSON(responseText)
	if err != nil {
		return result
	}
	result.Vendor = payload.Vendor
	result.Amount = payload.Amount
	result.Currency = payload.Currency
	result.Category = payload.Category
	result.Date = parseExtractedDate(payload.Date)
	return result
}
