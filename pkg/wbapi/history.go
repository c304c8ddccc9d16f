package wbapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// Keywords are the allowed values of one characteristic.
type Keywords struct {
	Values []string `json:"values"`
	Min    *int     `json:"min"`
	Max    *int     `json:"max"`
}

// HistoryQuery filters the processing history.
type HistoryQuery struct {
	Limit  int
	Offset int
	Status string
}

// HistoryItem is one past processing run recorded by the backend.
type HistoryItem struct {
	ID               int64    `json:"id"`
	NmID             *int64   `json:"nm_id"`
	Article          string   `json:"article"`
	SubjectID        *int64   `json:"subject_id"`
	SubjectName      string   `json:"subject_name"`
	Status           string   `json:"status"`
	ValidationScore  *float64 `json:"validation_score"`
	TitleScore       *float64 `json:"title_score"`
	DescriptionScore *float64 `json:"description_score"`
	ProcessingTime   *float64 `json:"processing_time"`
	CreatedAt        string   `json:"created_at"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

// HistoryPage is one page of history items.
type HistoryPage struct {
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Items  []HistoryItem `json:"items"`
}

// HistoryStats aggregates processing over a period.
type HistoryStats struct {
	PeriodDays         int     `json:"period_days"`
	TotalProcessed     int     `json:"total_processed"`
	Completed          int     `json:"completed"`
	Failed             int     `json:"failed"`
	SuccessRate        float64 `json:"success_rate"`
	AvgProcessingTime  float64 `json:"avg_processing_time"`
	AvgValidationScore float64 `json:"avg_validation_score"`
}

func (c *httpClient) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	params.Set("status", q.Status)

	var out HistoryPage
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/history", params), nil, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: history")
	}
	return &out, nil
}

func (c *httpClient) HistoryStats(ctx context.Context, days int) (*HistoryStats, error) {
	params := url.Values{}
	if days > 0 {
		params.Set("days", strconv.Itoa(days))
	}
	var out HistoryStats
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/history/stats", params), nil, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: history stats")
	}
	return &out, nil
}

// Keywords lists the allowed values and length limits of a characteristic.
func (c *httpClient) Keywords(ctx context.Context, name string) (*Keywords, error) {
	params := url.Values{"name": {name}}
	var out Keywords
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/admin/keywords/", params), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: keywords %s", name)
	}
	return &out, nil
}
