package receipt

import "time"

// Status tracks a receipt through its processing lifecycle.
type Status string

const (
	// StatusProcessing is the placeholder state between upload and the
	// pipeline's commit.
	StatusProcessing Status = "processing"
	// StatusReview means extraction succeeded and a human must confirm.
	StatusReview Status = "review"
	// StatusCompleted is the confirmed terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed means extraction failed; the diagnostic detail is in
	// RawExtractionText.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusReview, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a user edit may move a receipt from s to
// next. Transitions only go forward: completed never regresses, and nothing
// returns to processing without a fresh upload. Review and failed receipts
// remain editable.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusProcessing:
		return next == StatusReview || next == StatusFailed || next == StatusCompleted
	case StatusReview:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusReview || next == StatusCompleted
	case StatusCompleted:
		return false
	}
	return false
}

// ManualEntrySource is the sentinel source path for receipts created by
// hand rather than from uploaded media.
const ManualEntrySource = "manual_entry"

// Receipt is a purchase record extracted from uploaded media or entered
// manually. Amount is in the original currency; AmountUSD is the derived
// USD equivalent and is set only when conversion succeeded or the currency
// was already USD. SourcePath is never mutated after creation.
type Receipt struct {
	ID                string     `json:"id"`
	Vendor            *string    `json:"vendor"`
	Amount            *float64   `json:"amount"`
	Currency          string     `json:"currency"`
	AmountUSD         *float64   `json:"amount_usd"`
	TransactionDate   *time.Time `json:"transaction_date"`
	CategoryID        *int       `json:"category_id"`
	SourcePath        string     `json:"source_path"`
	RawExtractionText *string    `json:"raw_extraction_text,omitempty"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Category organizes receipts for spending breakdowns.
type Category struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// DefaultCategories is the fixed seed set, in declaration order. The same
// names are the universe of valid categorization targets offered to the
// extraction backend and matched by the keyword categorizer.
var DefaultCategories = []Category{
	{Name: "Groceries", Icon: "🛒", Color: "#22c55e"},
	{Name: "Dining", Icon: "🍽️", Color: "#f97316"},
	{Name: "Fuel", Icon: "⛽", Color: "#eab308"},
	{Name: "Utilities", Icon: "💡", Color: "#3b82f6"},
	{Name: "Shopping", Icon: "🛍️", Color: "#8b5cf6"},
	{Name: "Healthcare", Icon: "🏥", Color: "#ef4444"},
	{Name: "Transportation", Icon: "🚗", Color: "#06b6d4"},
	{Name: "Entertainment", Icon: "🎬", Color: "#ec4899"},
	{Name: "Other", Icon: "📄", Color: "#64748b"},
}

// eastern is the reference timezone for "today" when media carries no
// capture timestamp and for dashboard month boundaries.
var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// EasternNow returns the current time in US Eastern.
func EasternNow() time.Time {
	return time.Now().In(eastern)
}

// EasternDate truncates a time to its calendar date in US Eastern.
func EasternDate(t time.Time) time.Time {
	year, month, day := t.In(eastern).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
