package services

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"dice-prediction-backend/internal/models"
)

const DefaultPageSize = 20

// HistoryPage is one rendering of a history snapshot.
type HistoryPage struct {
	Records       []models.GameRecord `json:"records"`
	HasMore       bool                `json:"has_more"`
	FilteredCount int                 `json:"filtered_count"`
	TotalCount    int                 `json:"total_count"`
	PageSize      int                 `json:"page_size"`
	Filtered      bool                `json:"filtered"`
	Query         models.HistoryQuery `json:"query"`
	Stats         models.PlayerStats  `json:"stats"`
}

// ApplyQuery filters, sorts and truncates records. Stats cover the whole
// filtered subset, not just the page. Day bounds are read in loc (UTC when
// nil). The input slice is left untouched.
func ApplyQuery(records []models.GameRecord, query models.HistoryQuery, pageSize int, loc *time.Location) HistoryPage {
	if loc == nil {
		loc = time.UTC
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	query = query.Normalize()

	filtered := make([]models.GameRecord, 0, len(records))
	for _, rec := range records {
		if matchesQuery(rec, query, loc) {
			filtered = append(filtered, rec)
		}
	}

	sortRecords(filtered, query.SortKey, query.SortOrder)

	page := filtered
	if len(page) > pageSize {
		page = page[:pageSize]
	}

	return HistoryPage{
		Records:       slices.Clone(page),
		HasMore:       len(filtered) > pageSize,
		FilteredCount: len(filtered),
		TotalCount:    len(records),
		PageSize:      pageSize,
		Filtered:      query.IsFiltered(),
		Query:         query,
		Stats:         AggregateStats(filtered),
	}
}

func matchesQuery(rec models.GameRecord, q models.HistoryQuery, loc *time.Location) bool {
	switch q.Outcome {
	case models.OutcomeWins:
		if !rec.Won {
			return false
		}
	case models.OutcomeLosses:
		if rec.Won {
			return false
		}
	}

	if needle := strings.ToLower(strings.TrimSpace(q.TxHash)); needle != "" {
		if !strings.Contains(strings.ToLower(rec.TxHash), needle) {
			return false
		}
	}

	if q.DateRange.Start != "" {
		if start, ok := dayStart(q.DateRange.Start, loc); ok {
			if !rec.HasTimestamp() || *rec.Timestamp < start.Unix() {
				return false
			}
		}
	}
	if q.DateRange.End != "" {
		if end, ok := dayStart(q.DateRange.End, loc); ok {
			// inclusive: anything before the following midnight
			if !rec.HasTimestamp() || *rec.Timestamp >= end.AddDate(0, 0, 1).Unix() {
				return false
			}
		}
	}

	return true
}

func dayStart(day string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(models.DateLayout, day, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sortRecords(records []models.GameRecord, key models.SortKey, order models.SortOrder) {
	compare := func(a, b models.GameRecord) int {
		var c int
		switch key {
		case models.SortByAmount:
			c = b.BetAmount.Cmp(a.BetAmount)
		case models.SortByOutcome:
			switch {
			case a.Won && !b.Won:
				c = -1
			case !a.Won && b.Won:
				c = 1
			case a.Won:
				c = b.Payout.Cmp(a.Payout)
			default:
				c = b.BetAmount.Cmp(a.BetAmount)
			}
		default:
			c = cmp.Compare(b.TimestampOrZero(), a.TimestampOrZero())
		}
		if c == 0 {
			c = cmp.Compare(b.GameID, a.GameID)
		}
		if order == models.SortAsc {
			return -c
		}
		return c
	}
	slices.SortStableFunc(records, compare)
}

// HistoryState is the view state of one history panel: the active query and
// how many rows are revealed. It is not safe for concurrent use.
type HistoryState struct {
	Query     models.HistoryQuery
	PageSize  int
	initial   int
	increment int
}

func NewHistoryState(pageSize int) *HistoryState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &HistoryState{
		Query:     models.DefaultHistoryQuery(),
		PageSize:  pageSize,
		initial:   pageSize,
		increment: pageSize,
	}
}

// SetQuery replaces the query. The page size goes back to its initial value.
func (s *HistoryState) SetQuery(q models.HistoryQuery) {
	s.Query = q.Normalize()
	s.PageSize = s.initial
}

func (s *HistoryState) LoadMore() {
	s.PageSize += s.increment
}

// Reset is called when the record set is replaced.
func (s *HistoryState) Reset() {
	s.PageSize = s.initial
}

func (s *HistoryState) ClearFilters() {
	s.SetQuery(s.Query.ClearFilters())
}

func (s *HistoryState) Apply(records []models.GameRecord, loc *time.Location) HistoryPage {
	return ApplyQuery(records, s.Query, s.PageSize, loc)
}
