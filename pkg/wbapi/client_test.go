package wbapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wbcard-cli/internal/resilience"
	"github.com/sells-group/wbcard-cli/internal/wbtest"
)

func fastRetry(attempts int) Option {
	return WithRetryPolicy(resilience.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	})
}

func newFake(t *testing.T) (*wbtest.Server, Client) {
	t.Helper()
	srv := wbtest.New()
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, WithToken(wbtest.Token), fastRetry(1))
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()
	srv := wbtest.New()
	defer srv.Close()

	client := NewClient(srv.URL)
	got, err := client.Login(context.Background(), "manager", "secret")
	require.NoError(t, err)
	assert.Equal(t, wbtest.Token, got.AccessToken)
	assert.Equal(t, "manager", got.Username)
	assert.Equal(t, "bearer", got.TokenType)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	srv := wbtest.New()
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Login(context.Background(), "manager", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Неверный логин или пароль")
}

func TestRegister(t *testing.T) {
	t.Parallel()
	srv := wbtest.New()
	defer srv.Close()
	client := NewClient(srv.URL)

	got, err := client.Register(context.Background(), RegisterRequest{
		Username: "operator", Email: "op@example.com", Password: "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "operator", got.Username)

	_, err = client.Register(context.Background(), RegisterRequest{Username: "operator", Password: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Пользователь уже существует")

	_, err = client.Register(context.Background(), RegisterRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field required")
}

func TestRequestsWithoutToken_Unauthorized(t *testing.T) {
	t.Parallel()
	srv := wbtest.New()
	defer srv.Close()

	client := NewClient(srv.URL, fastRetry(1))
	_, err := client.HistoryStats(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestProcessStream(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)
	body := wbtest.Stream(map[string]any{"type": "log", "message": "Получение карточки"})
	srv.SetStream("ART-1", body)

	rc, err := client.ProcessStream(context.Background(), "ART-1")
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, []string{"ART-1"}, srv.Processed())
}

func TestProcessStream_NotFound(t *testing.T) {
	t.Parallel()
	_, client := newFake(t)

	_, err := client.ProcessStream(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Карточка не найдена")
}

func TestBatchStream(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)
	srv.SetBatch(wbtest.Stream(map[string]any{"type": "batch_log", "message": "start"}))

	rc, err := client.BatchStream(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	_, _ = io.ReadAll(rc)
	require.NoError(t, rc.Close())
	assert.Equal(t, [][]string{{"A", "B"}}, srv.Batches())

	_, err = client.BatchStream(context.Background(), nil)
	require.Error(t, err)

	tooMany := make([]string, MaxBatchArticles+1)
	_, err = client.BatchStream(context.Background(), tooMany)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 to 50")
}

func TestCurrentCard(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)
	srv.SetCard("ART-1", `{"nmID":1001,"vendorCode":"ART-1","title":"Платье","photos":[{"big":"https://cdn/1.jpg"},"https://cdn/2.jpg"],
		"characteristics":[{"id":14177449,"name":"Цвет","value":["красный"]}]}`)

	card, err := client.CurrentCard(context.Background(), "ART-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), card.NmID)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, card.PhotoURLs())
	require.Len(t, card.Characteristics, 1)
	assert.Equal(t, "красный", card.Characteristics[0].Value.String())
}

func TestUpdateCards(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)

	_, err := client.UpdateCards(context.Background(), []CardUpdate{{NmID: 1, VendorCode: "A", Title: "T"}})
	require.NoError(t, err)

	updates := srv.Updates()
	require.Len(t, updates, 1)
	var sent []map[string]any
	require.NoError(t, json.Unmarshal(updates[0], &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, "A", sent[0]["vendorCode"])
	assert.Contains(t, sent[0], "dimensions")
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)
	ctx := context.Background()

	f, err := client.GenerateScene(ctx, "https://cdn/p.jpg", 3)
	require.NoError(t, err)
	assert.Equal(t, "photos/scene-1.png", f.FileName)

	_, err = client.GeneratePose(ctx, "https://cdn/p.jpg", 4)
	require.NoError(t, err)

	_, err = client.GenerateCustom(ctx, "https://cdn/p.jpg", "на пляже")
	require.NoError(t, err)

	v, err := client.GenerateVideo(ctx, VideoRequest{PhotoURL: "https://cdn/p.jpg", ScenarioID: 2})
	require.NoError(t, err)
	assert.Equal(t, "videos/video-4.mp4", v.FileName)
	assert.Equal(t, []string{"scene", "pose", "custom", "video"}, srv.Generated())

	_, err = client.GenerateCustom(ctx, "https://cdn/p.jpg", "")
	require.Error(t, err)
	_, err = client.GenerateVideo(ctx, VideoRequest{PhotoURL: "https://cdn/p.jpg"})
	require.Error(t, err)

	_, err = client.GenerateScene(ctx, "", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photo_url required")
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()
	srv, client := newFake(t)

	require.NoError(t, client.DeleteFile(context.Background(), "photos/scene-1.png"))
	assert.Equal(t, []string{"photos/scene-1.png"}, srv.Deleted())
	require.Error(t, client.DeleteFile(context.Background(), ""))
}

func TestHistory(t *testing.T) {
	t.Parallel()
	_, client := newFake(t)
	ctx := context.Background()

	page, err := client.History(ctx, HistoryQuery{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ART-1", page.Items[0].Article)
	require.NotNil(t, page.Items[0].ValidationScore)
	assert.Nil(t, page.Items[0].SubjectID)

	stats, err := client.HistoryStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.PeriodDays)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
}

func TestHistory_QuerySkipsEmpty(t *testing.T) {
	t.Parallel()
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`{"total":0,"items":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.History(context.Background(), HistoryQuery{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, "limit=20", rawQuery)
}

func TestRetry_TransientStatus(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"period_days":30}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fastRetry(3))
	stats, err := client.HistoryStats(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.PeriodDays)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, fastRetry(3))
	_, err := client.HistoryStats(context.Background(), 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIError_Message(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", 400, `{"detail":"bad article"}`, "bad article"},
		{"message", 400, `{"message":"nope"}`, "nope"},
		{"detail wins", 400, `{"detail":"a","message":"b"}`, "a"},
		{"validation list", 422, `{"detail":[{"loc":["body"],"msg":"x"},{"msg":"y"}]}`, "x; y"},
		{"plain text", 502, `upstream down`, "HTTP 502 Bad Gateway"},
		{"empty", 404, ``, "HTTP 404 Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status}
			got := newAPIError(resp, []byte(tt.body))
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.want, got.Message)
		})
	}
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRateLimit(0.001, 1))
	_, err := client.HistoryStats(context.Background(), 1)
	require.NoError(t, err)

	// the single burst token is spent; the next call cannot get one in time
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.HistoryStats(ctx, 1)
	require.Error(t, err)
}
