package wbapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

// GenerationAPI produces images and videos from a product photo.
type GenerationAPI interface {
	GenerateScene(ctx context.Context, photoURL string, itemID int64) (*GeneratedFile, error)
	GeneratePose(ctx context.Context, photoURL string, promptID int64) (*GeneratedFile, error)
	GenerateCustom(ctx context.Context, photoURL, prompt string) (*GeneratedFile, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (*GeneratedFile, error)
	// DeleteFile removes a generated file from the backend's media storage.
	DeleteFile(ctx context.Context, fileName string) error
}

// GeneratedFile is a file stored by the backend after generation.
type GeneratedFile struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}

// VideoRequest asks for a short video from a photo. Either Prompt or
// ScenarioID must be set.
type VideoRequest struct {
	PhotoURL   string `json:"photo_url"`
	Prompt     string `json:"prompt,omitempty"`
	ScenarioID int64  `json:"scenario_id,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

func (c *httpClient) generate(ctx context.Context, kind string, body any) (*GeneratedFile, error) {
	var out GeneratedFile
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/photo/generate/"+kind, nil), body, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: generate %s", kind)
	}
	if out.FileURL == "" {
		return nil, eris.Errorf("wbapi: generate %s: empty file url", kind)
	}
	return &out, nil
}

func (c *httpClient) GenerateScene(ctx context.Context, photoURL string, itemID int64) (*GeneratedFile, error) {
	return c.generate(ctx, "scene", map[string]any{"photo_url": photoURL, "item_id": itemID})
}

func (c *httpClient) GeneratePose(ctx context.Context, photoURL string, promptID int64) (*GeneratedFile, error) {
	return c.generate(ctx, "pose", map[string]any{"photo_url": photoURL, "prompt_id": promptID})
}

func (c *httpClient) GenerateCustom(ctx context.Context, photoURL, prompt string) (*GeneratedFile, error) {
	if prompt == "" {
		return nil, eris.New("wbapi: generate custom: prompt is required")
	}
	return c.generate(ctx, "custom", map[string]any{
		"photo_url":       photoURL,
		"prompt":          prompt,
		"translate_to_en": true,
	})
}

func (c *httpClient) GenerateVideo(ctx context.Context, req VideoRequest) (*GeneratedFile, error) {
	if req.Prompt == "" && req.ScenarioID == 0 {
		return nil, eris.New("wbapi: generate video: prompt or scenario required")
	}
	return c.generate(ctx, "video", req)
}

// DeleteFile treats 204 and 200 alike.
func (c *httpClient) DeleteFile(ctx context.Context, fileName string) error {
	if fileName == "" {
		return eris.New("wbapi: delete file: empty name")
	}
	_, err := c.do(ctx, http.MethodDelete, c.endpoint("/api/photo/files/"+url.PathEscape(fileName), nil), nil)
	return eris.Wrapf(err, "wbapi: delete file %s", fileName)
}
