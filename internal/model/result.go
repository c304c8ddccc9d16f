package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// ResultRecord is the AI-generation outcome for one product card.
type ResultRecord struct {
	NmID      int64 `json:"nmID,omitempty"`
	SubjectID int64 `json:"subjectID,omitempty"`

	OldTitle       string `json:"old_title,omitempty"`
	NewTitle       string `json:"new_title,omitempty"`
	OldDescription string `json:"old_description,omitempty"`
	NewDescription string `json:"new_description,omitempty"`

	ValidationScore     *float64 `json:"validation_score,omitempty"`
	TitleScore          *float64 `json:"title_score,omitempty"`
	TitleAttempts       int      `json:"title_attempts,omitempty"`
	DescriptionScore    *float64 `json:"description_score,omitempty"`
	DescriptionAttempts int      `json:"description_attempts,omitempty"`
	DescriptionWarnings []string `json:"description_warnings,omitempty"`
	IterationsDone      int      `json:"iterations_done,omitempty"`

	OldCharacteristics []Characteristic `json:"old_characteristics,omitempty"`
	NewCharacteristics []Characteristic `json:"new_characteristics,omitempty"`
	PhotoURLs          []string         `json:"photo_urls,omitempty"`

	// Raw is the payload exactly as received, kept for passthrough display.
	Raw json.RawMessage `json:"-"`
}

// DecodeResult decodes a result-shaped JSON object and keeps the raw bytes.
func DecodeResult(raw json.RawMessage) (*ResultRecord, error) {
	var r ResultRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "model: decode result")
	}
	r.Raw = append(json.RawMessage(nil), raw...)
	return &r, nil
}

// UnmarshalJSON decodes ids, counters and scores leniently: numbers,
// numeric strings and floats with an integral meaning are all accepted, and a
// value that is not numeric at all decodes as zero (nil for scores).
func (r *ResultRecord) UnmarshalJSON(data []byte) error {
	type plain ResultRecord
	aux := struct {
		*plain
		NmID                any `json:"nmID"`
		SubjectID           any `json:"subjectID"`
		ValidationScore     any `json:"validation_score"`
		TitleScore          any `json:"title_score"`
		TitleAttempts       any `json:"title_attempts"`
		DescriptionScore    any `json:"description_score"`
		DescriptionAttempts any `json:"description_attempts"`
		IterationsDone      any `json:"iterations_done"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.NmID = cast.ToInt64(aux.NmID)
	r.SubjectID = cast.ToInt64(aux.SubjectID)
	r.TitleAttempts = cast.ToInt(aux.TitleAttempts)
	r.DescriptionAttempts = cast.ToInt(aux.DescriptionAttempts)
	r.IterationsDone = cast.ToInt(aux.IterationsDone)
	r.ValidationScore = score(aux.ValidationScore)
	r.TitleScore = score(aux.TitleScore)
	r.DescriptionScore = score(aux.DescriptionScore)
	return nil
}

func score(v any) *float64 {
	if v == nil {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil
	}
	return &f
}

// CharacteristicNames lists the names of the new characteristics in order.
func (r *ResultRecord) CharacteristicNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.NewCharacteristics))
	for _, c := range r.NewCharacteristics {
		names = append(names, c.Name)
	}
	return names
}

// DescriptionMeta is display-only metadata paired with the description.
type DescriptionMeta struct {
	Score    *float64 `json:"description_score,omitempty"`
	Attempts int      `json:"description_attempts,omitempty"`
	Warnings []string `json:"description_warnings,omitempty"`
}

// DescriptionMeta extracts the description metadata.
func (r *ResultRecord) DescriptionMeta() DescriptionMeta {
	return DescriptionMeta{
		Score:    r.DescriptionScore,
		Attempts: r.DescriptionAttempts,
		Warnings: r.DescriptionWarnings,
	}
}
