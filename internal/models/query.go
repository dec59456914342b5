package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar day format of DateRange bounds.
const DateLayout = "2006-01-02"

type OutcomeFilter string

const (
	OutcomeAll    OutcomeFilter = "all"
	OutcomeWins   OutcomeFilter = "wins"
	OutcomeLosses OutcomeFilter = "losses"
)

type SortKey string

const (
	SortByDate    SortKey = "date"
	SortByAmount  SortKey = "amount"
	SortByOutcome SortKey = "outcome"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange bounds are calendar days in YYYY-MM-DD form, both inclusive.
// An empty bound is open.
type DateRange struct {
	Start string `json:"start" form:"start"`
	End   string `json:"end" form:"end"`
}

type HistoryQuery struct {
	Outcome   OutcomeFilter `json:"outcome" form:"outcome"`
	TxHash    string        `json:"tx" form:"tx"`
	DateRange DateRange     `json:"date_range"`
	SortKey   SortKey       `json:"sort" form:"sort"`
	SortOrder SortOrder     `json:"order" form:"order"`
}

func DefaultHistoryQuery() HistoryQuery {
	return HistoryQuery{
		Outcome:   OutcomeAll,
		SortKey:   SortByDate,
		SortOrder: SortDesc,
	}
}

// Normalize fills empty fields with their defaults and lowercases the enums.
func (q HistoryQuery) Normalize() HistoryQuery {
	q.Outcome = OutcomeFilter(strings.ToLower(strings.TrimSpace(string(q.Outcome))))
	if q.Outcome == "" {
		q.Outcome = OutcomeAll
	}
	q.SortKey = SortKey(strings.ToLower(strings.TrimSpace(string(q.SortKey))))
	if q.SortKey == "" {
		q.SortKey = SortByDate
	}
	q.SortOrder = SortOrder(strings.ToLower(strings.TrimSpace(string(q.SortOrder))))
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
	q.DateRange.Start = strings.TrimSpace(q.DateRange.Start)
	q.DateRange.End = strings.TrimSpace(q.DateRange.End)
	return q
}

func (q HistoryQuery) Validate() error {
	switch q.Outcome {
	case OutcomeAll, OutcomeWins, OutcomeLosses:
	default:
		return fmt.Errorf("invalid outcome filter: %s", q.Outcome)
	}

	switch q.SortKey {
	case SortByDate, SortByAmount, SortByOutcome:
	default:
		return fmt.Errorf("invalid sort key: %s", q.SortKey)
	}

	switch q.SortOrder {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("invalid sort order: %s", q.SortOrder)
	}

	for _, day := range []string{q.DateRange.Start, q.DateRange.End} {
		if day == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, day); err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", day)
		}
	}

	return nil
}

// ClearFilters drops the outcome, tx and date filters and keeps the sort.
func (q HistoryQuery) ClearFilters() HistoryQuery {
	return HistoryQuery{
		Outcome:   OutcomeAll,
		SortKey:   q.SortKey,
		SortOrder: q.SortOrder,
	}
}

// IsFiltered reports whether the query narrows the record set.
func (q HistoryQuery) IsFiltered() bool {
	return (q.Outcome != "" && q.Outcome != OutcomeAll) ||
		strings.TrimSpace(q.TxHash) != "" ||
		q.DateRange.Start != "" ||
		q.DateRange.End != ""
}
