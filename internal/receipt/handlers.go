package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// allowedUploadTypes are the media types the extraction backends can work
// with: photos and PDFs of receipts, plus spoken audio notes.
var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
	"audio/mpeg":      true,
	"audio/mp3":       true,
	"audio/mp4":       true,
	"audio/m4a":       true,
	"audio/wav":       true,
	"audio/ogg":       true,
	"audio/webm":      true,
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes a JSON response with CORS headers set
func writeJSON(w http.ResponseWriter, code int, payload any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes a JSON error body
func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleHealth reports service liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseDate parses a YYYY-MM-DD query or body value.
func parseDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return &d, nil
}

// handleListReceipts returns a filtered, paginated receipt listing
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		Status: Status(query.Get("status")),
	}

	if v := query.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			filter.Page = page
		}
	}
	if v := query.Get("per_page"); v != "" {
		if perPage, err := strconv.Atoi(v); err == nil {
			filter.PerPage = perPage
		}
	}
	if v := query.Get("category_id"); v != "" {
		categoryID, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		filter.CategoryID = &categoryID
	}

	var err error
	if filter.StartDate, err = parseDate(query.Get("start_date")); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.EndDate, err = parseDate(query.Get("end_date")); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.service.ListReceipts(filter)
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleUploadReceipt stores the uploaded media, creates the placeholder
// record and enqueues processing. The response returns immediately with the
// receipt still in the processing state.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	// 50MB cap to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeJSONError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeJSONError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	contentType := normalizeContentType(header.Header.Get("Content-Type"), header.Filename)
	if !allowedUploadTypes[contentType] {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported file type %q. Upload a receipt image, PDF or audio note.", contentType))
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	rec, err := s.service.UploadReceipt(header.Filename, data)
	if err != nil {
		slog.Error("Error uploading receipt", "filename", header.Filename, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Error saving receipt. Please try again.")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"receipt": rec,
		"message": "Receipt uploaded and processing started",
	})
}

// normalizeContentType lowercases the declared type, falling back to the
// file extension when the client sent none.
func normalizeContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
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

// receiptPayload is the JSON body shared by manual create and update.
type receiptPayload struct {
	Vendor          *string  `json:"vendor"`
	Amount          *float64 `json:"amount"`
	Currency        *string  `json:"currency"`
	TransactionDate *string  `json:"transaction_date"`
	CategoryID      *int     `json:"category_id"`
	Status          *string  `json:"status"`
}

// handleCreateReceipt creates a manual receipt without media
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var payload receiptPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Amount != nil && *payload.Amount < 0 {
		writeJSONError(w, http.StatusBadRequest, "Amount must be non-negative")
		return
	}

	entry := ManualEntry{
		Vendor:     payload.Vendor,
		Amount:     payload.Amount,
		CategoryID: payload.CategoryID,
	}
	if payload.Currency != nil {
		entry.Currency = *payload.Currency
	}
	if payload.TransactionDate != nil {
		date, err := parseDate(*payload.TransactionDate)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		entry.TransactionDate = date
	}

	rec, err := s.service.CreateManual(r.Context(), entry)
	if err != nil {
		slog.Error("Error creating receipt", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	rec, err := s.service.GetReceipt(id)
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateReceipt applies a manual edit to a receipt
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}

	var payload receiptPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Amount != nil && *payload.Amount < 0 {
		writeJSONError(w, http.StatusBadRequest, "Amount must be non-negative")
		return
	}

	update := ReceiptUpdate{
		Vendor:     payload.Vendor,
		Amount:     payload.Amount,
		Currency:   payload.Currency,
		CategoryID: payload.CategoryID,
	}
	if payload.TransactionDate != nil {
		date, err := parseDate(*payload.TransactionDate)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		update.TransactionDate = date
	}
	if payload.Status != nil {
		status := Status(*payload.Status)
		update.Status = &status
	}

	if _, err := s.service.GetReceipt(id); err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	rec, err := s.service.UpdateReceipt(r.Context(), id, update)
	if err != nil {
		slog.Error("Error updating receipt", "receipt_id", id, "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleGetReceiptFile returns the media file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetReceiptFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt and its media
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if _, err := s.service.GetReceipt(id); err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	if err := s.service.DeleteReceipt(id); err != nil {
		slog.Error("Error deleting receipt", "receipt_id", id, "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleDashboardSummary returns the current month overview
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.DashboardSummary()
	if err != nil {
		slog.Error("Error building dashboard summary", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleDashboardTrends returns the monthly spending series
func (s *Server) handleDashboardTrends(w http.ResponseWriter, r *http.Request) {
	months := 12
	if v := r.URL.Query().Get("months"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			months = parsed
		}
	}
	trends, err := s.service.SpendingTrends(months)
	if err != nil {
		slog.Error("Error building spending trends", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

// handleListCategories returns all categories
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.ListCategories()
	if err != nil {
		slog.Error("Error listing categories", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []*Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}
