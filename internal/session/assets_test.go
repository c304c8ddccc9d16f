package session

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/store"
)

func TestAssets_AddListRemove(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	m := NewManager(st, staticStreams(map[string]string{"A": resultStream, "B": resultStream}))
	a, err := m.Start(ctx, "A")
	require.NoError(t, err)
	b, err := m.Start(ctx, "B")
	require.NoError(t, err)

	assets := NewAssets(st, st)

	first, err := assets.Add(ctx, a.ID, model.Asset{Kind: model.AssetImage, Source: "scene", FileName: "photos/1.png", FileURL: "https://cdn/1.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = assets.Add(ctx, a.ID, model.Asset{Kind: model.AssetVideo, Source: "video", FileName: "videos/2.mp4", FileURL: "https://cdn/2.mp4"})
	require.NoError(t, err)

	list, err := assets.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "photos/1.png", list[0].FileName)
	assert.Equal(t, model.AssetVideo, list[1].Kind)

	other, err := assets.List(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, other)

	removed, err := assets.Remove(ctx, a.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "photos/1.png", removed.FileName)

	list, err = assets.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "videos/2.mp4", list[0].FileName)

	_, err = assets.Remove(ctx, a.ID, first.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestAssets_AddValidation(t *testing.T) {
	st := newTestStore(t)
	assets := NewAssets(st, st)
	ctx := context.Background()

	_, err := assets.Add(ctx, "missing", model.Asset{Kind: model.AssetImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file url")

	_, err = assets.Add(ctx, "missing", model.Asset{Kind: model.AssetImage, FileURL: "https://cdn/x.png"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}
