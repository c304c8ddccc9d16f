package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// encodeResult keeps the bytes received from the backend when available so
// fields the model does not know survive a round trip.
func encodeResult(r *model.ResultRecord) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	b, err := json.Marshal(r)
	return b, eris.Wrap(err, "marshal result")
}

func decodeResult(b []byte) (*model.ResultRecord, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return model.DecodeResult(b)
}

func encodeLogs(entries []model.LogEntry) ([]byte, error) {
	if entries == nil {
		entries = []model.LogEntry{}
	}
	b, err := json.Marshal(entries)
	return b, eris.Wrap(err, "marshal log entries")
}

func decodeLogs(b []byte) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, eris.Wrap(err, "unmarshal log entries")
	}
	return entries, nil
}
