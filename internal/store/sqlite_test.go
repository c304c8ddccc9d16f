package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wbcard-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func score(f float64) *float64 { return &f }

func sampleSession(article string) *model.Session {
	raw := json.RawMessage(`{"nmID":42,"new_title":"Платье","validation_score":88,"extra_field":"kept"}`)
	res, err := model.DecodeResult(raw)
	if err != nil {
		panic(err)
	}
	return &model.Session{
		Article:         article,
		Status:          model.SessionDone,
		Result:          res,
		ValidationScore: score(88),
		LogEntries: []model.LogEntry{
			{Timestamp: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC), Message: "Получение карточки"},
			{Timestamp: time.Date(2025, 9, 1, 10, 0, 5, 0, time.UTC), Message: "Готово"},
		},
	}
}

// --- Sessions ---

func TestSQLite_SaveAndGetSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := sampleSession("ART-1")
	require.NoError(t, st.SaveSession(ctx, sess))
	require.NotEmpty(t, sess.ID)
	assert.False(t, sess.StartedAt.IsZero())

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "ART-1", got.Article)
	assert.Equal(t, model.SessionDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Платье", got.Result.NewTitle)
	assert.Equal(t, int64(42), got.Result.NmID)
	assert.Contains(t, string(got.Result.Raw), "extra_field")
	require.NotNil(t, got.ValidationScore)
	assert.InDelta(t, 88.0, *got.ValidationScore, 0.001)
	require.Len(t, got.LogEntries, 2)
	assert.Equal(t, "Готово", got.LogEntries[1].Message)
	assert.False(t, got.Active)
}

func TestSQLite_SaveSession_Updates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &model.Session{Article: "ART-2", Status: model.SessionProcessing}
	require.NoError(t, st.SaveSession(ctx, sess))

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.ValidationScore)
	assert.Empty(t, got.LogEntries)

	sess.Status = model.SessionError
	sess.Error = "empty response from server (no final result)"
	require.NoError(t, st.SaveSession(ctx, sess))

	got, err = st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionError, got.Status)
	assert.Equal(t, sess.Error, got.Error)
	assert.WithinDuration(t, sess.StartedAt, got.StartedAt, time.Second)
}

func TestSQLite_UpdateSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &model.Session{Article: "ART-3", Status: model.SessionProcessing}
	require.NoError(t, st.SaveSession(ctx, sess))

	sess.Status = model.SessionDone
	sess.LogEntries = []model.LogEntry{{Timestamp: time.Now().UTC(), Message: "ok"}}
	require.NoError(t, st.UpdateSession(ctx, sess))

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionDone, got.Status)
	require.Len(t, got.LogEntries, 1)

	_, err = st.DeleteAllSessions(ctx)
	require.NoError(t, err)

	err = st.UpdateSession(ctx, sess)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLite_GetSession_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListSessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, article := range []string{"A", "B", "C"} {
		sess := sampleSession(article)
		sess.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if article == "B" {
			sess.Status = model.SessionError
		}
		require.NoError(t, st.SaveSession(ctx, sess))
	}

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].Article)
	assert.Equal(t, "A", all[2].Article)

	failed, err := st.ListSessions(ctx, SessionFilter{Status: model.SessionError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "B", failed[0].Article)

	byArticle, err := st.ListSessions(ctx, SessionFilter{Article: "A"})
	require.NoError(t, err)
	require.Len(t, byArticle, 1)

	page, err := st.ListSessions(ctx, SessionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "B", page[0].Article)
}

func TestSQLite_ActiveSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	active, err := st.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	first := sampleSession("A")
	second := sampleSession("B")
	require.NoError(t, st.SaveSession(ctx, first))
	require.NoError(t, st.SaveSession(ctx, second))

	require.NoError(t, st.SetActiveSession(ctx, first.ID))
	require.NoError(t, st.SetActiveSession(ctx, second.ID))

	active, err = st.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	got, err := st.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// saving does not touch the active flag
	second.Status = model.SessionError
	require.NoError(t, st.SaveSession(ctx, second))
	active, err = st.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	err = st.SetActiveSession(ctx, "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	// a failed switch keeps the previous active session
	active, err = st.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestSQLite_DeleteAllSessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := sampleSession("A")
	require.NoError(t, st.SaveSession(ctx, sess))
	require.NoError(t, st.SaveSession(ctx, sampleSession("B")))
	require.NoError(t, st.SaveAssets(ctx, sess.ID, []model.Asset{{Kind: model.AssetImage, FileURL: "https://cdn/x.png"}}))

	n, err := st.DeleteAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	assets, err := st.LoadAssets(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

// --- Credentials ---

func TestSQLite_Credentials(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	creds, err := st.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	require.NoError(t, st.SaveCredentials(ctx, model.Credentials{Username: "manager", Token: "tok-1"}))
	require.NoError(t, st.SaveCredentials(ctx, model.Credentials{Username: "manager", Token: "tok-2"}))

	creds, err = st.LoadCredentials(ctx)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "manager", creds.Username)
	assert.Equal(t, "tok-2", creds.Token)
	assert.False(t, creds.SavedAt.IsZero())

	require.NoError(t, st.ClearCredentials(ctx))
	creds, err = st.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)
}

// --- Assets ---

func TestSQLite_Assets_ScopedBySession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleSession("A")
	b := sampleSession("B")
	require.NoError(t, st.SaveSession(ctx, a))
	require.NoError(t, st.SaveSession(ctx, b))

	empty, err := st.LoadAssets(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	list := []model.Asset{
		{Kind: model.AssetImage, Source: "scene", FileName: "1.png", FileURL: "https://cdn/1.png"},
		{Kind: model.AssetVideo, Source: "video", FileName: "2.mp4", FileURL: "https://cdn/2.mp4", SourceURL: "https://cdn/src.jpg"},
	}
	require.NoError(t, st.SaveAssets(ctx, a.ID, list))
	require.NoError(t, st.SaveAssets(ctx, b.ID, list[:1]))

	got, err := st.LoadAssets(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.png", got[0].FileName)
	assert.Equal(t, model.AssetVideo, got[1].Kind)
	assert.Equal(t, "https://cdn/src.jpg", got[1].SourceURL)
	assert.NotEmpty(t, got[0].ID)

	// replacing keeps order and drops removed entries
	require.NoError(t, st.SaveAssets(ctx, a.ID, []model.Asset{got[1]}))
	got, err = st.LoadAssets(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2.mp4", got[0].FileName)

	other, err := st.LoadAssets(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}
