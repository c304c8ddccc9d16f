package wbapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// MaxBatchArticles is the largest batch the backend accepts.
const MaxBatchArticles = 50

// CardUpdate is one entry of the marketplace update payload.
type CardUpdate struct {
	NmID            int64            `json:"nmID"`
	VendorCode      string           `json:"vendorCode"`
	Brand           string           `json:"brand"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Dimensions      model.Dimensions `json:"dimensions"`
	Characteristics []CardCharValue  `json:"characteristics"`
	Sizes           []model.Size     `json:"sizes"`
}

// CardCharValue is a characteristic in the marketplace update format.
type CardCharValue struct {
	ID    int64    `json:"id"`
	Value []string `json:"value"`
}

// MaxTitleRunes is the marketplace limit on card titles.
const MaxTitleRunes = 60

// NewCardUpdate builds the update payload from a merged record and the card it
// replaces. Vendor code, brand, dimensions and sizes come from the current
// card. Characteristic ids are taken from the record and, when missing there,
// from the same-named characteristic of the current card; entries with no
// known id or no value are skipped.
func NewCardUpdate(final model.FinalRecord, current *model.Card) (CardUpdate, error) {
	if current == nil {
		return CardUpdate{}, eris.New("wbapi: current card required")
	}
	if current.Dimensions == nil {
		return CardUpdate{}, eris.Errorf("wbapi: card %d has no dimensions", current.NmID)
	}
	if n := len([]rune(final.Title)); n > MaxTitleRunes {
		return CardUpdate{}, eris.Errorf("wbapi: title is %d characters, limit is %d", n, MaxTitleRunes)
	}

	nmID := final.NmID
	if nmID == 0 {
		nmID = current.NmID
	}
	out := CardUpdate{
		NmID:            nmID,
		VendorCode:      current.VendorCode,
		Brand:           current.Brand,
		Title:           final.Title,
		Description:     final.Description,
		Dimensions:      *current.Dimensions,
		Characteristics: []CardCharValue{},
		Sizes:           current.Sizes,
	}
	if out.VendorCode == "" {
		out.VendorCode = final.Article
	}
	if out.Sizes == nil {
		out.Sizes = []model.Size{}
	}
	for _, ch := range final.Characteristics {
		id := ch.ID
		if id == 0 {
			if cur, ok := model.FindCharacteristic(current.Characteristics, ch.Name); ok {
				id = cur.ID
			}
		}
		vals := ch.Value.Values()
		if id == 0 || len(vals) == 0 {
			continue
		}
		out.Characteristics = append(out.Characteristics, CardCharValue{ID: id, Value: vals})
	}
	return out, nil
}

func (c *httpClient) CurrentCard(ctx context.Context, article string) (*model.Card, error) {
	var out model.Card
	body := map[string]string{"article": article}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/process/get_current_card", nil), body, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: current card %s", article)
	}
	return &out, nil
}

func (c *httpClient) ProcessStream(ctx context.Context, article string) (io.ReadCloser, error) {
	body := map[string]string{"article": article}
	rc, err := c.stream(ctx, c.endpoint("/api/process", nil), body)
	return rc, eris.Wrap(err, "wbapi: process stream")
}

func (c *httpClient) BatchStream(ctx context.Context, articles []string) (io.ReadCloser, error) {
	if len(articles) == 0 || len(articles) > MaxBatchArticles {
		return nil, eris.Errorf("wbapi: batch needs 1 to %d articles, got %d", MaxBatchArticles, len(articles))
	}
	body := map[string][]string{"articles": articles}
	rc, err := c.stream(ctx, c.endpoint("/api/batch/batch", nil), body)
	return rc, eris.Wrap(err, "wbapi: batch stream")
}

func (c *httpClient) UpdateCards(ctx context.Context, cards []CardUpdate) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPost, c.endpoint("/api/wb/cards/update", nil), cards)
	if err != nil {
		return nil, eris.Wrap(err, "wbapi: update cards")
	}
	return json.RawMessage(data), nil
}
