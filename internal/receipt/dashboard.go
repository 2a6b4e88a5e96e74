package receipt

import (
	"fmt"
	"math"
	"time"
)

// CategorySpending is one category's slice of the current month.
type CategorySpending struct {
	CategoryID   int     `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Icon         string  `json:"icon"`
	Color        string  `json:"color"`
	Total        float64 `json:"total"`
	Count        int     `json:"count"`
}

// DashboardSummary compares the current month against the previous one.
// Totals are USD equivalents; counts cover every dated receipt in range,
// including those whose USD amount is still unresolved.
type DashboardSummary struct {
	CurrentMonthTotal    float64            `json:"current_month_total"`
	CurrentMonthCount    int                `json:"current_month_count"`
	PreviousMonthTotal   float64            `json:"previous_month_total"`
	MonthOverMonthChange float64            `json:"month_over_month_change"`
	CategoryBreakdown    []CategorySpending `json:"category_breakdown"`
}

// MonthlySpending is one month of the trend series.
type MonthlySpending struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// SpendingTrends is the historical month-by-month series, zero-filled for
// months with no spending.
type SpendingTrends struct {
	MonthlyData []MonthlySpending `json:"monthly_data"`
}

// DashboardSummary aggregates the current Eastern-calendar month with a
// per-category breakdown and the month-over-month change.
func (s *Service) DashboardSummary() (*DashboardSummary, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	today := EasternDate(s.timeSource.Now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevMonthStart := monthStart.AddDate(0, -1, 0)
	prevMonthEnd := monthStart.AddDate(0, 0, -1)

	summary := &DashboardSummary{}
	byCategory := make(map[int]*CategorySpending)

	for _, r := range receipts {
		usd, date := r.AmountUSD, r.TransactionDate
		if date == nil {
			continue
		}
		// Counts include every receipt in range; totals only those with a
		// resolved USD amount.
		switch {
		case !date.Before(monthStart) && !date.After(today):
			summary.CurrentMonthCount++
			if usd == nil {
				continue
			}
			summary.CurrentMonthTotal += *usd
			if r.CategoryID != nil {
				entry, ok := byCategory[*r.CategoryID]
				if !ok {
					entry = &CategorySpending{CategoryID: *r.CategoryID}
					byCategory[*r.CategoryID] = entry
				}
				entry.Total += *usd
				entry.Count++
			}
		case usd != nil && !date.Before(prevMonthStart) && !date.After(prevMonthEnd):
			summary.PreviousMonthTotal += *usd
		}
	}

	if summary.PreviousMonthTotal > 0 {
		change := (summary.CurrentMonthTotal - summary.PreviousMonthTotal) / summary.PreviousMonthTotal * 100
		summary.MonthOverMonthChange = math.Round(change*10) / 10
	} else if summary.CurrentMonthTotal > 0 {
		summary.MonthOverMonthChange = 100.0
	}

	// Categories listed in seed order; empty ones are omitted
	summary.CategoryBreakdown = make([]CategorySpending, 0, len(byCategory))
	for _, category := range categories {
		entry, ok := byCategory[category.ID]
		if !ok || entry.Total <= 0 {
			continue
		}
		entry.CategoryName = category.Name
		entry.Icon = category.Icon
		entry.Color = category.Color
		summary.CategoryBreakdown = append(summary.CategoryBreakdown, *entry)
	}

	return summary, nil
}

// SpendingTrends aggregates USD spending for the last months calendar
// months, including the current one, with zero-filled gaps.
func (s *Service) SpendingTrends(months int) (*SpendingTrends, error) {
	if months < 1 {
		months = 12
	}
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	today := EasternDate(s.timeSource.Now())
	currentMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	windowStart := currentMonth.AddDate(0, -(months - 1), 0)

	type monthKey struct {
		year  int
		month time.Month
	}
	totals := make(map[monthKey]*MonthlySpending)

	for _, r := range receipts {
		usd, date := r.AmountUSD, r.TransactionDate
		if date == nil || date.Before(windowStart) || date.After(today) {
			continue
		}
		key := monthKey{date.Year(), date.Month()}
		entry, ok := totals[key]
		if !ok {
			entry = &MonthlySpending{Year: key.year, Month: int(key.month)}
			totals[key] = entry
		}
		entry.Count++
		if usd != nil {
			entry.Total += *usd
		}
	}

	trends := &SpendingTrends{MonthlyData: make([]MonthlySpending, 0, months)}
	for cursor := windowStart; !cursor.After(currentMonth); cursor = cursor.AddDate(0, 1, 0) {
		key := monthKey{cursor.Year(), cursor.Month()}
		if entry, ok := totals[key]; ok {
			trends.MonthlyData = append(trends.MonthlyData, *entry)
		} else {
			trends.MonthlyData = append(trends.MonthlyData, MonthlySpending{Year: key.year, Month: int(key.month)})
		}
	}

	return trends, nil
}
