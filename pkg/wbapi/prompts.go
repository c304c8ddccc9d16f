package wbapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

// PromptAPI manages the generation prompt templates.
type PromptAPI interface {
	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, promptType string) (*Prompt, error)
	PreviewPrompt(ctx context.Context, promptType string) (*PromptPreview, error)
	CreatePrompt(ctx context.Context, in PromptInput) (*Prompt, error)
	UpdatePrompt(ctx context.Context, promptType string, in PromptInput) (*Prompt, error)
	DeactivatePrompt(ctx context.Context, promptType string) error
	ActivatePrompt(ctx context.Context, promptType string) (*Prompt, error)
	PromptTypes(ctx context.Context) ([]PromptType, error)
	PromptVersions(ctx context.Context, promptType string) ([]PromptVersion, error)
}

// Prompt is the active version of a prompt template.
type Prompt struct {
	ID           int64  `json:"id"`
	PromptType   string `json:"prompt_type"`
	SystemPrompt string `json:"system_prompt"`
	StrictRules  string `json:"strict_rules,omitempty"`
	Examples     string `json:"examples,omitempty"`
	Version      int    `json:"version"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// PromptInput creates or updates a prompt template. It doubles as the YAML
// file format of `prompts push`.
type PromptInput struct {
	PromptType   string `json:"prompt_type,omitempty" yaml:"prompt_type"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	StrictRules  string `json:"strict_rules,omitempty" yaml:"strict_rules,omitempty"`
	Examples     string `json:"examples,omitempty" yaml:"examples,omitempty"`
	ChangeReason string `json:"change_reason,omitempty" yaml:"change_reason,omitempty"`
}

// PromptPreview is the fully assembled prompt sent to the model.
type PromptPreview struct {
	PromptType string         `json:"prompt_type"`
	Version    int            `json:"version"`
	FullPrompt string         `json:"full_prompt"`
	Components map[string]any `json:"components"`
}

// PromptType is a template slot the backend knows about.
type PromptType struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// PromptVersion describes one stored revision of a template.
type PromptVersion struct {
	ID           int64  `json:"id"`
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at"`
	CreatedBy    string `json:"created_by"`
	ChangeReason string `json:"change_reason"`
}

func (c *httpClient) promptPath(promptType string, suffix ...string) string {
	p := "/api/admin/prompts/" + url.PathEscape(promptType)
	for _, s := range suffix {
		p += "/" + s
	}
	return c.endpoint(p, nil)
}

func (c *httpClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var out []Prompt
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/admin/prompts", nil), nil, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: list prompts")
	}
	return out, nil
}

func (c *httpClient) GetPrompt(ctx context.Context, promptType string) (*Prompt, error) {
	var out Prompt
	if err := c.doJSON(ctx, http.MethodGet, c.promptPath(promptType), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: get prompt %s", promptType)
	}
	return &out, nil
}

func (c *httpClient) PreviewPrompt(ctx context.Context, promptType string) (*PromptPreview, error) {
	var out PromptPreview
	if err := c.doJSON(ctx, http.MethodGet, c.promptPath(promptType, "preview"), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: preview prompt %s", promptType)
	}
	return &out, nil
}

func (c *httpClient) CreatePrompt(ctx context.Context, in PromptInput) (*Prompt, error) {
	if in.PromptType == "" || in.SystemPrompt == "" {
		return nil, eris.New("wbapi: create prompt: prompt_type and system_prompt are required")
	}
	var out Prompt
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/admin/prompts", nil), in, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: create prompt %s", in.PromptType)
	}
	return &out, nil
}

func (c *httpClient) UpdatePrompt(ctx context.Context, promptType string, in PromptInput) (*Prompt, error) {
	in.PromptType = ""
	var out Prompt
	if err := c.doJSON(ctx, http.MethodPut, c.promptPath(promptType), in, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: update prompt %s", promptType)
	}
	return &out, nil
}

func (c *httpClient) DeactivatePrompt(ctx context.Context, promptType string) error {
	_, err := c.do(ctx, http.MethodDelete, c.promptPath(promptType), nil)
	return eris.Wrapf(err, "wbapi: deactivate prompt %s", promptType)
}

func (c *httpClient) ActivatePrompt(ctx context.Context, promptType string) (*Prompt, error) {
	var out Prompt
	if err := c.doJSON(ctx, http.MethodPost, c.promptPath(promptType, "activate"), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: activate prompt %s", promptType)
	}
	return &out, nil
}

func (c *httpClient) PromptTypes(ctx context.Context) ([]PromptType, error) {
	var out struct {
		Types []PromptType `json:"types"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/admin/prompts/types/available", nil), nil, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: prompt types")
	}
	return out.Types, nil
}

func (c *httpClient) PromptVersions(ctx context.Context, promptType string) ([]PromptVersion, error) {
	var out []PromptVersion
	if err := c.doJSON(ctx, http.MethodGet, c.promptPath(promptType, "versions"), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: prompt versions %s", promptType)
	}
	return out, nil
}
