package session

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/store"
)

// Assets keeps the generated photos and videos of each session.
type Assets struct {
	store    store.AssetStore
	sessions store.SessionStore
	now      func() time.Time
}

// NewAssets creates an asset list manager. Sessions are checked to exist
// before their list is changed.
func NewAssets(assets store.AssetStore, sessions store.SessionStore) *Assets {
	return &Assets{store: assets, sessions: sessions, now: time.Now}
}

// List returns the assets of a session, oldest first.
func (a *Assets) List(ctx context.Context, sessionID string) ([]model.Asset, error) {
	list, err := a.store.LoadAssets(ctx, sessionID)
	return list, eris.Wrapf(err, "session: list assets %s", sessionID)
}

// Add appends asset to the session's list and returns it with its id set.
func (a *Assets) Add(ctx context.Context, sessionID string, asset model.Asset) (model.Asset, error) {
	if asset.FileURL == "" {
		return model.Asset{}, eris.New("session: asset has no file url")
	}
	if _, err := a.sessions.GetSession(ctx, sessionID); err != nil {
		return model.Asset{}, eris.Wrap(err, "session: add asset")
	}
	list, err := a.store.LoadAssets(ctx, sessionID)
	if err != nil {
		return model.Asset{}, eris.Wrap(err, "session: add asset")
	}
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = a.now().UTC()
	}
	list = append(list, asset)
	if err := a.store.SaveAssets(ctx, sessionID, list); err != nil {
		return model.Asset{}, eris.Wrap(err, "session: add asset")
	}
	return asset, nil
}

// Remove drops the asset with the given id and returns it, so the caller can
// delete the backing file.
func (a *Assets) Remove(ctx context.Context, sessionID, assetID string) (model.Asset, error) {
	list, err := a.store.LoadAssets(ctx, sessionID)
	if err != nil {
		return model.Asset{}, eris.Wrap(err, "session: remove asset")
	}
	idx := slices.IndexFunc(list, func(x model.Asset) bool { return x.ID == assetID })
	if idx < 0 {
		return model.Asset{}, eris.Wrapf(store.ErrNotFound, "session: asset %s", assetID)
	}
	removed := list[idx]
	list = slices.Delete(list, idx, idx+1)
	if err := a.store.SaveAssets(ctx, sessionID, list); err != nil {
		return model.Asset{}, eris.Wrap(err, "session: remove asset")
	}
	return removed, nil
}
