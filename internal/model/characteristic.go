package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// CharValue holds a characteristic value, which the backend sends either as a
// single string or as an ordered list of strings.
type CharValue struct {
	Single string
	List   []string
	IsList bool
}

// StringValue builds a single-valued CharValue.
func StringValue(s string) CharValue {
	return CharValue{Single: s}
}

// ListValue builds a list-valued CharValue.
func ListValue(items ...string) CharValue {
	return CharValue{List: items, IsList: true}
}

// IsEmpty reports whether the value carries no text at all.
func (v CharValue) IsEmpty() bool {
	if v.IsList {
		for _, s := range v.List {
			if s != "" {
				return false
			}
		}
		return true
	}
	return v.Single == ""
}

// Values returns the value as a list. A single string is split on commas and
// trimmed, which is how the marketplace update payload expects free text.
func (v CharValue) Values() []string {
	if v.IsList {
		out := make([]string, 0, len(v.List))
		for _, s := range v.List {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var out []string
	for _, part := range strings.Split(v.Single, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String renders the value for display.
func (v CharValue) String() string {
	if v.IsList {
		return strings.Join(v.List, ", ")
	}
	return v.Single
}

// MarshalJSON writes a list as a JSON array and a single value as a string.
func (v CharValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(v.Single)
}

// UnmarshalJSON accepts a string, a number, a bool, null or an array of those.
func (v *CharValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = CharValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return eris.Wrap(err, "model: decode characteristic list")
		}
		v.IsList = true
		v.List = make([]string, 0, len(raw))
		for _, item := range raw {
			s, err := scalarText(item)
			if err != nil {
				return err
			}
			v.List = append(v.List, s)
		}
		return nil
	}
	s, err := scalarText(data)
	if err != nil {
		return err
	}
	v.Single = s
	return nil
}

func scalarText(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", eris.Wrap(err, "model: decode characteristic string")
		}
		return s, nil
	}
	if data[0] == '{' || data[0] == '[' {
		return "", eris.Errorf("model: unsupported characteristic value %s", string(data))
	}
	// numbers and booleans keep their literal text
	return string(data), nil
}

// Characteristic is a named product attribute. Name is unique within a list.
type Characteristic struct {
	ID    int64     `json:"id,omitempty"`
	Name  string    `json:"name"`
	Value CharValue `json:"value"`
}

// FindCharacteristic returns the first entry with the given name.
func FindCharacteristic(list []Characteristic, name string) (Characteristic, bool) {
	for _, c := range list {
		if c.Name == name {
			return c, true
		}
	}
	return Characteristic{}, false
}
