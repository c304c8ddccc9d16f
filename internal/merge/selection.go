package merge

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// Choice picks one side of an old/new pair.
type Choice string

const (
	Old Choice = "old"
	New Choice = "new"
)

// ParseChoice validates operator input. Matching is case-insensitive.
func ParseChoice(s string) (Choice, error) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case Old:
		return Old, nil
	case New:
		return New, nil
	}
	return "", eris.Errorf("merge: invalid choice %q (want old or new)", s)
}

// Selection holds the operator's per-field choices for one result.
type Selection struct {
	Title           Choice
	Description     Choice
	Characteristics map[string]Choice
}

// NewSelection returns the initial selection for a result: "new" for the
// title, the description and every name in new_characteristics.
func NewSelection(result *model.ResultRecord) Selection {
	sel := Selection{
		Title:           New,
		Description:     New,
		Characteristics: make(map[string]Choice),
	}
	for _, name := range result.CharacteristicNames() {
		sel.Characteristics[name] = New
	}
	return sel
}

// Set records a choice for a characteristic name.
func (s *Selection) Set(name string, c Choice) {
	if s.Characteristics == nil {
		s.Characteristics = make(map[string]Choice)
	}
	s.Characteristics[name] = c
}

// ChoiceFor returns the choice for a characteristic; unset names default
// to "new".
func (s Selection) ChoiceFor(name string) Choice {
	if c, ok := s.Characteristics[name]; ok && c == Old {
		return Old
	}
	return New
}

// fingerprint is a stable encoding of the selection used as a memo key.
func (s Selection) fingerprint() string {
	var b strings.Builder
	b.WriteString(string(orNew(s.Title)))
	b.WriteByte('|')
	b.WriteString(string(orNew(s.Description)))

	names := make([]string, 0, len(s.Characteristics))
	for name, c := range s.Characteristics {
		if c == Old {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
	}
	return b.String()
}

func orNew(c Choice) Choice {
	if c == Old {
		return Old
	}
	return New
}
