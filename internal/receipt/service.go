package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aniyer/vyaya/internal/worker"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Enqueuer hands tasks to the background processing worker. Enqueue never
// blocks, so the upload fast path returns immediately regardless of how
// deep the processing backlog is.
type Enqueuer interface {
	Enqueue(task worker.Task)
}

// CurrencyConverter converts an amount to its USD equivalent. A nil result
// with no error means the conversion is unresolved and the USD amount stays
// unset.
type CurrencyConverter interface {
	ConvertToUSD(ctx context.Context, amount float64, currency string, asOf *time.Time) (*float64, error)
}

// defaultIDGenerator generates UUID receipt IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time in US Eastern
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return EasternNow()
}

// Service handles receipt operations
type Service struct {
	db          DB
	storage     Storage
	queue       Enqueuer
	converter   CurrencyConverter
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, queue Enqueuer, converter CurrencyConverter) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		queue:       queue,
		converter:   converter,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, queue Enqueuer, converter CurrencyConverter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		queue:       queue,
		converter:   converter,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SeedCategories populates the default category set when the store is
// empty. Existing categories, including user-edited ones, are left alone.
func (s *Service) SeedCategories() error {
	count, err := s.db.CountCategories()
	if err != nil {
		return fmt.Errorf("counting categories: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, category := range DefaultCategories {
		seed := category
		seed.ID = 0
		if err := s.db.SaveCategory(&seed); err != nil {
			return fmt.Errorf("seeding category %s: %w", category.Name, err)
		}
	}
	slog.Info("Seeded default categories", "count", len(DefaultCategories))
	return nil
}

// UploadReceipt stores the media file, creates a placeholder record in the
// processing state and enqueues the extraction task. It returns before any
// inference runs; the worker populates the record later.
func (s *Service) UploadReceipt(filename string, data []byte) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	// Partition media by upload date so the directory stays navigable
	storedName := filepath.Join(now.Format("2006/01/02"), id+ext)

	savedPath, err := s.storage.Save(storedName, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receipt := &Receipt{
		ID:         id,
		Currency:   "USD",
		SourcePath: savedPath,
		Status:     StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	s.queue.Enqueue(worker.Task{
		ReceiptID: id,
		MediaPath: s.storage.Path(savedPath),
	})

	return receipt, nil
}

// ManualEntry holds the fields of a hand-entered receipt.
type ManualEntry struct {
	Vendor          *string
	Amount          *float64
	Currency        string
	TransactionDate *time.Time
	CategoryID      *int
}

// CreateManual creates a receipt without media. Manual entries bypass the
// pipeline entirely and are created directly in the completed state, with
// currency normalization applied inline.
func (s *Service) CreateManual(ctx context.Context, entry ManualEntry) (*Receipt, error) {
	now := s.timeSource.Now()

	currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
	if currency == "" {
		currency = "USD"
	}
	transactionDate := entry.TransactionDate
	if transactionDate == nil {
		today := EasternDate(now)
		transactionDate = &today
	}
	if entry.CategoryID != nil {
		if _, err := s.db.GetCategory(*entry.CategoryID); err != nil {
			return nil, fmt.Errorf("resolving category: %w", err)
		}
	}

	receipt := &Receipt{
		ID:              s.idGenerator.Generate(),
		Vendor:          entry.Vendor,
		Amount:          entry.Amount,
		Currency:        currency,
		TransactionDate: transactionDate,
		CategoryID:      entry.CategoryID,
		SourcePath:      ManualEntrySource,
		Status:          StatusCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.normalizeCurrency(ctx, receipt)

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}

// ReceiptUpdate holds the editable fields of a receipt. Nil fields are left
// unchanged.
type ReceiptUpdate struct {
	Vendor          *string
	Amount          *float64
	Currency        *string
	TransactionDate *time.Time
	CategoryID      *int
	Status          *Status
}

// UpdateReceipt applies a user edit. Changing the amount, currency or date
// re-triggers currency normalization; a failed conversion leaves the USD
// amount unset without failing the edit. Status changes only move forward.
func (s *Service) UpdateReceipt(ctx context.Context, id string, update ReceiptUpdate) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	renormalize := false
	if update.Vendor != nil {
		receipt.Vendor = update.Vendor
	}
	if update.Amount != nil {
		receipt.Amount = update.Amount
		renormalize = true
	}
	if update.Currency != nil {
		receipt.Currency = strings.ToUpper(strings.TrimSpace(*update.Currency))
		renormalize = true
	}
	if update.TransactionDate != nil {
		receipt.TransactionDate = update.TransactionDate
		renormalize = true
	}
	if update.CategoryID != nil {
		if _, err := s.db.GetCategory(*update.CategoryID); err != nil {
			return nil, fmt.Errorf("resolving category: %w", err)
		}
		receipt.CategoryID = update.CategoryID
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, fmt.Errorf("invalid status: %s", *update.Status)
		}
		if !receipt.Status.CanTransition(*update.Status) {
			return nil, fmt.Errorf("cannot move receipt from %s to %s", receipt.Status, *update.Status)
		}
		receipt.Status = *update.Status
	}

	if renormalize {
		s.normalizeCurrency(ctx, receipt)
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}

// normalizeCurrency derives AmountUSD from the receipt's amount, currency
// and transaction date. An unresolved or failed conversion leaves AmountUSD
// nil; it is never fatal to the record.
func (s *Service) normalizeCurrency(ctx context.Context, receipt *Receipt) {
	receipt.AmountUSD = nil
	if receipt.Amount == nil {
		return
	}
	converted, err := s.converter.ConvertToUSD(ctx, *receipt.Amount, receipt.Currency, receipt.TransactionDate)
	if err != nil {
		slog.Error("Currency conversion failed", "receipt_id", receipt.ID, "currency", receipt.Currency, "error", err)
		return
	}
	receipt.AmountUSD = converted
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListFilter narrows and pages a receipt listing.
type ListFilter struct {
	CategoryID *int
	Status     Status
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PerPage    int
}

// ReceiptPage is one page of a filtered receipt listing.
type ReceiptPage struct {
	Items   []*Receipt `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
	Pages   int        `json:"pages"`
}

// ListReceipts returns receipts matching the filter, newest transaction
// first, paginated.
func (s *Service) ListReceipts(filter ListFilter) (*ReceiptPage, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	matched := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if filter.CategoryID != nil && (r.CategoryID == nil || *r.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.StartDate != nil && (r.TransactionDate == nil || r.TransactionDate.Before(*filter.StartDate)) {
			continue
		}
		if filter.EndDate != nil && (r.TransactionDate == nil || r.TransactionDate.After(*filter.EndDate)) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		di, dj := matched[i].TransactionDate, matched[j].TransactionDate
		switch {
		case di == nil && dj != nil:
			return false
		case di != nil && dj == nil:
			return true
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.After(*dj)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	total := len(matched)
	pages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &ReceiptPage{
		Items:   matched[start:end],
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	}, nil
}

// DeleteReceipt removes a receipt and its media file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if receipt.SourcePath != ManualEntrySource {
		if err := s.storage.Delete(receipt.SourcePath); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete media file", "path", receipt.SourcePath, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the media file for a receipt along with its MIME
// type.
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.SourcePath == ManualEntrySource {
		return nil, "", fmt.Errorf("receipt %s has no media file", id)
	}

	data, err := s.storage.Get(receipt.SourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	contentType := contentTypeForExtension(filepath.Ext(receipt.SourcePath))
	return data, contentType, nil
}

// ListCategories returns all categories
func (s *Service) ListCategories() ([]*Category, error) {
	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

func contentTypeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic", ".heif":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
