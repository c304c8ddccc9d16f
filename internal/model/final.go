package model

import "time"

// FinalRecord is the merged, exportable card derived from a result and the
// operator's per-field choices. It is recomputed on every read.
type FinalRecord struct {
	Article         string           `json:"article"`
	NmID            int64            `json:"nmID"`
	SubjectID       int64            `json:"subjectID"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	DescriptionMeta DescriptionMeta  `json:"description_meta"`
	Characteristics []Characteristic `json:"characteristics"`
	ValidationScore *float64         `json:"validation_score"`
}

// AssetKind distinguishes generated images from generated videos.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// Asset is a generated photo or video kept for a session.
type Asset struct {
	ID        string    `json:"id"`
	Kind      AssetKind `json:"kind"`
	Source    string    `json:"source"`
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
