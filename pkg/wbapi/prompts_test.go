package wbapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompts_Routes(t *testing.T) {
	srv, reqs := recordingServer(t, `{"id":1,"prompt_type":"title_generator","system_prompt":"s","version":2,"is_active":true}`)
	client := NewClient(srv.URL)
	ctx := context.Background()

	p, err := client.GetPrompt(ctx, "title_generator")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)

	_, err = client.PreviewPrompt(ctx, "title_generator")
	require.NoError(t, err)
	_, err = client.CreatePrompt(ctx, PromptInput{PromptType: "title_generator", SystemPrompt: "s"})
	require.NoError(t, err)
	_, err = client.UpdatePrompt(ctx, "title_generator", PromptInput{PromptType: "dropped", StrictRules: "r", ChangeReason: "tune"})
	require.NoError(t, err)
	require.NoError(t, client.DeactivatePrompt(ctx, "title_generator"))
	_, err = client.ActivatePrompt(ctx, "title_generator")
	require.NoError(t, err)

	got := reqs()
	require.Len(t, got, 6)
	want := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/prompts/title_generator"},
		{http.MethodGet, "/api/admin/prompts/title_generator/preview"},
		{http.MethodPost, "/api/admin/prompts"},
		{http.MethodPut, "/api/admin/prompts/title_generator"},
		{http.MethodDelete, "/api/admin/prompts/title_generator"},
		{http.MethodPost, "/api/admin/prompts/title_generator/activate"},
	}
	for i, w := range want {
		assert.Equal(t, w.method, got[i].Method, i)
		assert.Equal(t, w.path, got[i].Path, i)
	}
	assert.Equal(t, map[string]any{"strict_rules": "r", "change_reason": "tune"}, got[3].Body)
}

func TestCreatePrompt_RequiresFields(t *testing.T) {
	srv, reqs := recordingServer(t, `{}`)
	client := NewClient(srv.URL)

	_, err := client.CreatePrompt(context.Background(), PromptInput{PromptType: "x"})
	require.Error(t, err)
	assert.Empty(t, reqs())
}

func TestPromptTypes(t *testing.T) {
	srv, _ := recordingServer(t, `{"types":[{"type":"title_generator","description":"Генерация","category":"title"}]}`)
	client := NewClient(srv.URL)

	types, err := client.PromptTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "title", types[0].Category)
}

func TestListPromptsAndVersions(t *testing.T) {
	srv, reqs := recordingServer(t, `[{"id":1,"version":3,"created_by":"admin","change_reason":"fix"}]`)
	client := NewClient(srv.URL)
	ctx := context.Background()

	_, err := client.ListPrompts(ctx)
	require.NoError(t, err)
	versions, err := client.PromptVersions(ctx, "description_generator")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "fix", versions[0].ChangeReason)

	got := reqs()
	assert.Equal(t, "/api/admin/prompts", got[0].Path)
	assert.Equal(t, "/api/admin/prompts/description_generator/versions", got[1].Path)
}
