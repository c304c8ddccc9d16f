// Package merge builds the exportable card from a generation result and the
// operator's per-field old/new choices.
package merge

import (
	"sync"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// Merge derives the final record. Title and description come straight from
// the chosen side, empty or not. Characteristics follow new_characteristics
// order; an "old" choice uses the same-named old entry when there is one and
// keeps the new entry otherwise. Names present only in old_characteristics
// are not emitted.
func Merge(result *model.ResultRecord, sel Selection, article string) model.FinalRecord {
	out := model.FinalRecord{Article: article}
	if result == nil {
		return out
	}

	out.NmID = result.NmID
	out.SubjectID = result.SubjectID
	out.ValidationScore = result.ValidationScore
	out.DescriptionMeta = result.DescriptionMeta()

	out.Title = result.NewTitle
	if sel.Title == Old {
		out.Title = result.OldTitle
	}
	out.Description = result.NewDescription
	if sel.Description == Old {
		out.Description = result.OldDescription
	}

	out.Characteristics = make([]model.Characteristic, 0, len(result.NewCharacteristics))
	for _, nc := range result.NewCharacteristics {
		if sel.ChoiceFor(nc.Name) == Old {
			if oc, ok := model.FindCharacteristic(result.OldCharacteristics, nc.Name); ok {
				out.Characteristics = append(out.Characteristics, oc)
				continue
			}
		}
		out.Characteristics = append(out.Characteristics, nc)
	}
	return out
}

// Memo caches the last Merge output and recomputes it whenever the result,
// the selection or the article changes.
type Memo struct {
	mu      sync.Mutex
	result  *model.ResultRecord
	key     string
	article string
	valid   bool
	out     model.FinalRecord
	misses  int
}

// Get returns the merged record for the inputs.
func (m *Memo) Get(result *model.ResultRecord, sel Selection, article string) model.FinalRecord {
	key := sel.fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.result == result && m.key == key && m.article == article {
		return m.out
	}
	m.out = Merge(result, sel, article)
	m.result, m.key, m.article, m.valid = result, key, article, true
	m.misses++
	return m.out
}

// Computations reports how many times the record was recomputed.
func (m *Memo) Computations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}
