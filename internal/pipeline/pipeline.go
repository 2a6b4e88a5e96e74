package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aniyer/vyaya/internal/categorize"
	"github.com/aniyer/vyaya/internal/receipt"
	"github.com/aniyer/vyaya/internal/scanning"
	"github.com/aniyer/vyaya/internal/worker"
)

// Pipeline transforms a queued (receipt ID, media path) task into a fully
// populated or failed receipt record. It runs entirely inside the worker's
// single consumer goroutine, so no two pipeline runs ever race inside the
// extraction backend.
type Pipeline struct {
	db        receipt.DB
	scanner   scanning.Scanner
	converter receipt.CurrencyConverter
	now       func() time.Time
}

// New creates a pipeline over the given collaborators.
func New(db receipt.DB, scanner scanning.Scanner, converter receipt.CurrencyConverter) *Pipeline {
	return &Pipeline{
		db:        db,
		scanner:   scanner,
		converter: converter,
		now:       receipt.EasternNow,
	}
}

// NewWithClock creates a pipeline with an injected clock for testing.
func NewWithClock(db receipt.DB, scanner scanning.Scanner, converter receipt.CurrencyConverter, now func() time.Time) *Pipeline {
	p := New(db, scanner, converter)
	p.now = now
	return p
}

// Handle processes one task. It implements worker.Handler. All mutations
// for the receipt are committed in a single save at the end of the attempt,
// on both the success and failure paths; readers see either the placeholder
// or the final state, never anything in between.
func (p *Pipeline) Handle(task worker.Task) error {
	slog.Info("Starting processing for receipt", "receipt_id", task.ReceiptID)

	rec, err := p.db.GetReceipt(task.ReceiptID)
	if err != nil {
		return fmt.Errorf("loading receipt %s: %w", task.ReceiptID, err)
	}

	// Anything unexpected during the run still lands the receipt in a
	// terminal state with the fault recorded for troubleshooting.
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("Processing failed: %v", r)
			rec.Status = receipt.StatusFailed
			rec.RawExtractionText = &detail
			if err := p.db.SaveReceipt(rec); err != nil {
				slog.Error("Failed to record processing fault", "receipt_id", rec.ID, "error", err)
			}
			slog.Error("Processing panicked", "receipt_id", rec.ID, "panic", r)
		}
	}()

	ctx := context.Background()

	// 1. Date resolution: embedded capture timestamp, else today in
	// Eastern. Corrupt or missing metadata is treated as "not present".
	date := captureDate(task.MediaPath)
	if date == nil {
		today := receipt.EasternDate(p.now())
		date = &today
	}
	rec.TransactionDate = date

	// 2. Extraction. A failed backend has no vendor to categorize or
	// amount to convert, so the receipt goes straight to failed.
	result := p.scanner.Process(ctx, task.MediaPath, p.validCategories())
	if result.Failed() {
		slog.Error("Extraction failed", "receipt_id", rec.ID, "detail", result.RawText)
		rec.Status = receipt.StatusFailed
		rec.RawExtractionText = &result.RawText
		if err := p.db.SaveReceipt(rec); err != nil {
			return fmt.Errorf("saving failed receipt %s: %w", rec.ID, err)
		}
		return nil
	}

	rec.Vendor = result.Vendor
	rec.Amount = result.Amount
	if result.Currency != nil {
		rec.Currency = *result.Currency
	} else {
		rec.Currency = "USD"
	}
	rec.RawExtractionText = &result.RawText

	// 3. Categorization: the backend's guess resolved case-insensitively,
	// then the keyword categorizer as fallback. No match is not an error.
	p.categorizeReceipt(rec, result)

	// 4. Currency normalization. A failed conversion leaves the USD
	// amount unset without failing the record.
	p.normalizeCurrency(ctx, rec)

	rec.Status = receipt.StatusReview
	if err := p.db.SaveReceipt(rec); err != nil {
		return fmt.Errorf("saving processed receipt %s: %w", rec.ID, err)
	}

	slog.Info("Receipt processed successfully", "receipt_id", rec.ID, "status", rec.Status)
	return nil
}

// validCategories returns the category names offered to the extraction
// backend as constrained choices. When the store is unreadable the keyword
// table's names serve as the universe.
func (p *Pipeline) validCategories() []string {
	categories, err := p.db.ListCategories()
	if err != nil || len(categories) == 0 {
		return categorize.Categories()
	}
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, category.Name)
	}
	return names
}

func (p *Pipeline) categorizeReceipt(rec *receipt.Receipt, result *scanning.Result) {
	if result.Category != nil {
		if category, err := p.db.GetCategoryByName(*result.Category); err == nil {
			rec.CategoryID = &category.ID
			return
		}
	}
	if rec.Vendor == nil {
		return
	}
	if name, ok := categorize.Match(*rec.Vendor); ok {
		if category, err := p.db.GetCategoryByName(name); err == nil {
			rec.CategoryID = &category.ID
		}
	}
}

func (p *Pipeline) normalizeCurrency(ctx context.Context, rec *receipt.Receipt) {
	rec.AmountUSD = nil
	if rec.Amount == nil {
		return
	}
	converted, err := p.converter.ConvertToUSD(ctx, *rec.Amount, rec.Currency, rec.TransactionDate)
	if err != nil {
		slog.Error("Currency conversion failed", "receipt_id", rec.ID, "currency", rec.Currency, "error", err)
		return
	}
	rec.AmountUSD = converted
}
