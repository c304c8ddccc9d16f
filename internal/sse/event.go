package sse

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// ErrNullFrame is returned for a frame whose payload is the JSON literal null.
var ErrNullFrame = eris.New("sse: frame payload is null")

// Kind classifies a decoded event.
type Kind int

const (
	// KindIgnored is a typed event the client has no use for.
	KindIgnored Kind = iota
	KindLog
	KindBatchLog
	KindResult
	KindBatchCompleted
	KindError
	// KindRaw is an untyped object, treated as a bare result candidate.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindBatchLog:
		return "batch_log"
	case KindResult:
		return "result"
	case KindBatchCompleted:
		return "batch_completed"
	case KindError:
		return "error"
	case KindRaw:
		return "raw"
	default:
		return "ignored"
	}
}

// Event is the decoded form of one frame.
type Event struct {
	Kind Kind
	// Type is the discriminator as sent, empty when absent or falsy.
	Type string
	// Message is set for log-like and error events.
	Message string
	// Candidate is the result-shaped object this event proposes, if any.
	Candidate json.RawMessage
}

// HasCandidate reports whether the event proposes a result.
func (e Event) HasCandidate() bool {
	return len(e.Candidate) > 0
}

// Decode parses a frame payload and classifies it. The precedence is fixed:
// log-like tags, then result with payload, then batch_completed with a
// non-empty card list, then untyped objects; any other typed event is
// ignored. A JSON syntax error is returned to the caller, which is expected
// to log it and keep reading.
func Decode(frame []byte) (Event, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Event{}, eris.Wrap(err, "sse: parse frame")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Event{}, ErrNullFrame
	}

	fields, isObject := objectFields(raw)
	typeRaw := fields["type"]

	var typ string
	if truthy(typeRaw) {
		typ = textOf(typeRaw)
	}

	switch typ {
	case "log":
		return Event{Kind: KindLog, Type: typ, Message: logText(fields, raw)}, nil
	case "card_log", "batch_log":
		return Event{Kind: KindBatchLog, Type: typ, Message: logText(fields, raw)}, nil
	case "error":
		return Event{Kind: KindError, Type: typ, Message: errorText(fields, raw)}, nil
	}

	switch {
	case typ == "result":
		p := fields["payload"]
		if !truthy(p) {
			// the backend in production sends the record under "data"
			p = fields["data"]
		}
		if truthy(p) {
			return Event{Kind: KindResult, Type: typ, Candidate: p}, nil
		}
	case typ == "batch_completed":
		if first, ok := firstBatchCard(fields["results"]); ok {
			return Event{Kind: KindBatchCompleted, Type: typ, Candidate: first}, nil
		}
	case !truthy(typeRaw):
		if isObject {
			return Event{Kind: KindRaw, Candidate: raw}, nil
		}
		return Event{Kind: KindIgnored}, nil
	}

	return Event{Kind: KindIgnored, Type: typ}, nil
}

// ResultShaped reports whether a candidate looks like a generation result:
// a truthy new_title, new_description or new_characteristics, or any
// validation_score key (null included).
func ResultShaped(candidate json.RawMessage) bool {
	fields, ok := objectFields(candidate)
	if !ok {
		return false
	}
	if truthy(fields["new_title"]) || truthy(fields["new_description"]) || truthy(fields["new_characteristics"]) {
		return true
	}
	_, defined := fields["validation_score"]
	return defined
}

// firstBatchCard returns results.cards[0] when cards is a non-empty array.
// Further cards are not surfaced; the client works one card at a time.
func firstBatchCard(results json.RawMessage) (json.RawMessage, bool) {
	fields, ok := objectFields(results)
	if !ok {
		return nil, false
	}
	cardsRaw := bytes.TrimSpace(fields["cards"])
	if len(cardsRaw) == 0 || cardsRaw[0] != '[' {
		return nil, false
	}
	var cards []json.RawMessage
	if err := json.Unmarshal(cardsRaw, &cards); err != nil || len(cards) == 0 {
		return nil, false
	}
	return cards[0], true
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// truthy follows JavaScript semantics: absent, null, false, 0 and "" are
// falsy; arrays and objects are truthy even when empty.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 'n', 'f':
		return false
	case 't', '[', '{':
		return true
	case '"':
		return len(raw) > 2
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		return err != nil || f != 0
	}
}

// textOf renders a JSON value as text: strings unquoted, others verbatim.
func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func logText(fields map[string]json.RawMessage, raw json.RawMessage) string {
	for _, key := range []string{"message", "msg", "text"} {
		if v := fields[key]; truthy(v) {
			return textOf(v)
		}
	}
	return compact(raw)
}

func errorText(fields map[string]json.RawMessage, raw json.RawMessage) string {
	if v := fields["message"]; truthy(v) {
		return textOf(v)
	}
	return compact(raw)
}
