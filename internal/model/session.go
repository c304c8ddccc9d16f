package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// SessionStatus represents the state of a processing session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionDone       SessionStatus = "done"
	SessionError      SessionStatus = "error"
)

// LogEntry is one line of the processing log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Session is one operator-initiated run of the generation pipeline.
type Session struct {
	ID              string        `json:"id"`
	Article         string        `json:"article"`
	StartedAt       time.Time     `json:"started_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Status          SessionStatus `json:"status"`
	Result          *ResultRecord `json:"result,omitempty"`
	LogEntries      []LogEntry    `json:"log_entries"`
	ValidationScore *float64      `json:"validation_score,omitempty"`
	Error           string        `json:"error,omitempty"`
	Active          bool          `json:"active"`
}

// NormalizeArticle trims the article and folds it to NFC so that the same
// vendor code typed on different keyboards maps to one key.
func NormalizeArticle(article string) string {
	return norm.NFC.String(strings.TrimSpace(article))
}
