package pricing

import (
	"fmt"
	"sort"

	"github.com/smoradi/quotameter/internal/model"
)

// Entry holds per-1,000-token prices for one model, in micro-dollars.
type Entry struct {
	InputPer1K  model.Money
	OutputPer1K model.Money
}

// Table maps model identifiers to prices. Unknown models fall back to the
// default entry, which must exist.
type Table struct {
	entries      map[string]Entry
	defaultModel string
}

// New builds a Table. The default model must be present in entries.
func New(entries map[string]Entry, defaultModel string) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("pricing: empty table")
	}
	if _, ok := entries[defaultModel]; !ok {
		return nil, fmt.Errorf("pricing: default model %q not in table", defaultModel)
	}
	cp := make(map[string]Entry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &Table{entries: cp, defaultModel: defaultModel}, nil
}

// Lookup returns the entry for model, falling back to the default entry for
// unknown models. The second return reports whether the model was known.
func (t *Table) Lookup(mdl string) (Entry, bool) {
	if e, ok := t.entries[mdl]; ok {
		return e, true
	}
	return t.entries[t.defaultModel], false
}

// CostOf computes the cost of a call in micro-dollars:
//
//	in/1000 * input_price + out/1000 * output_price
//
// summed before rounding, rounded half up to the nearest micro-dollar.
// Pure and monotonically non-decreasing in both counts.
func (t *Table) CostOf(mdl string, inTokens, outTokens int64) model.Money {
	if inTokens < 0 {
		inTokens = 0
	}
	if outTokens < 0 {
		outTokens = 0
	}
	e, _ := t.Lookup(mdl)
	raw := inTokens*e.InputPer1K.Micros() + outTokens*e.OutputPer1K.Micros()
	return model.MicroUSD((raw + 500) / 1000)
}

// Models returns the known model identifiers, sorted.
func (t *Table) Models() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *Table) DefaultModel() string { return t.defaultModel }
