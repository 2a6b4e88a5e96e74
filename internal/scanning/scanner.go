package scanning

import (
	"context"
	"fmt"
	"time"
)

// Result is the structured guess an extraction backend returns for one
// receipt. Confidence is a coarse success signal: 1.0 when the backend
// produced a response, 0.0 when it could not run at all (missing
// credentials, unreadable media, transport failure). RawText always carries
// the full backend response, or the error detail when Confidence is zero,
// for audit and troubleshooting.
type Result struct {
	Vendor     *string
	Amount     *float64
	Currency   *string
	Date       *time.Time
	Category   *string
	RawText    string
	Confidence float64
}

// Failed reports whether the backend could not produce any extraction.
func (r *Result) Failed() bool {
	return r.Confidence == 0
}

// Scanner is the uniform capability interface over interchangeable OCR/LLM
// engines. Process analyzes the media file at mediaPath (image, PDF or
// audio note) and extracts purchase fields, constraining the category guess
// to validCategories. It never returns an error: backend and configuration
// faults are reported through the Result shape with zero confidence so a
// misconfigured engine cannot halt the processing queue.
type Scanner interface {
	Process(ctx context.Context, mediaPath string, validCategories []string) *Result
	// Close closes the scanner and releases resources
	Close() error
}

// errorResult wraps a backend fault in the standard result shape.
func errorResult(err error) *Result {
	return &Result{
		RawText:    fmt.Sprintf("Error: %v", err),
		Confidence: 0,
	}
}
