package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Card is the marketplace's current product record.
type Card struct {
	NmID            int64            `json:"nmID"`
	VendorCode      string           `json:"vendorCode,omitempty"`
	Brand           string           `json:"brand,omitempty"`
	Title           string           `json:"title,omitempty"`
	Description     string           `json:"description,omitempty"`
	SubjectID       int64            `json:"subjectID,omitempty"`
	SubjectName     string           `json:"subjectName,omitempty"`
	Characteristics []Characteristic `json:"characteristics,omitempty"`
	Photos          []Photo          `json:"photos,omitempty"`
	Dimensions      *Dimensions      `json:"dimensions,omitempty"`
	Sizes           []Size           `json:"sizes,omitempty"`
}

// PhotoURLs returns the preferred URL of every photo, skipping empty ones.
func (c *Card) PhotoURLs() []string {
	var urls []string
	for _, p := range c.Photos {
		if u := p.URL(); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// Photo lists the size variants the marketplace serves for one image.
type Photo struct {
	Big      string `json:"big,omitempty"`
	HQ       string `json:"hq,omitempty"`
	Square   string `json:"square,omitempty"`
	C246x328 string `json:"c246x328,omitempty"`
	C516x688 string `json:"c516x688,omitempty"`
}

// URL picks the largest available variant.
func (p Photo) URL() string {
	for _, u := range []string{p.Big, p.HQ, p.Square, p.C246x328, p.C516x688} {
		if u != "" {
			return u
		}
	}
	return ""
}

// UnmarshalJSON accepts either a variants object or a bare URL string.
func (p *Photo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode photo url")
		}
		*p = Photo{Big: s}
		return nil
	}
	type plain Photo
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return eris.Wrap(err, "model: decode photo")
	}
	*p = Photo(out)
	return nil
}

// Dimensions are the package dimensions of a card.
type Dimensions struct {
	Length       int     `json:"length"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	WeightBrutto float64 `json:"weightBrutto"`
}

// Size is one marketplace size with its barcodes.
type Size struct {
	ChrtID   int64    `json:"chrtID,omitempty"`
	TechSize string   `json:"techSize,omitempty"`
	WBSize   string   `json:"wbSize,omitempty"`
	SKUs     []string `json:"skus"`
}
