package pricing

import (
	"testing"

	"github.com/smoradi/quotameter/internal/model"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(map[string]Entry{
		"gpt-4":         {InputPer1K: model.MicroUSD(30_000), OutputPer1K: model.MicroUSD(60_000)},
		"gpt-4-turbo":   {InputPer1K: model.MicroUSD(10_000), OutputPer1K: model.MicroUSD(30_000)},
		"gpt-3.5-turbo": {InputPer1K: model.MicroUSD(500), OutputPer1K: model.MicroUSD(1_500)},
	}, "gpt-4")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tbl
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "gpt-4"); err == nil {
		t.Error("New with empty table: expected error")
	}
	if _, err := New(map[string]Entry{"a": {}}, "missing"); err == nil {
		t.Error("New with absent default model: expected error")
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	tbl := testTable(t)

	e, known := tbl.Lookup("gpt-3.5-turbo")
	if !known {
		t.Error("known model reported unknown")
	}
	if e.InputPer1K != 500 {
		t.Errorf("InputPer1K = %d, want 500", e.InputPer1K)
	}

	e, known = tbl.Lookup("some-new-model")
	if known {
		t.Error("unknown model reported known")
	}
	// default entry
	if e.InputPer1K != 30_000 || e.OutputPer1K != 60_000 {
		t.Errorf("fallback entry = %+v, want gpt-4 prices", e)
	}
}

func TestCostOf(t *testing.T) {
	tbl := testTable(t)

	tests := []struct {
		name    string
		model   string
		in, out int64
		want    model.Money
	}{
		{"zero tokens", "gpt-4", 0, 0, 0},
		{"gpt-4 1k in 500 out", "gpt-4", 1000, 500, model.MicroUSD(60_000)},
		{"gpt-4 full thousand each", "gpt-4", 1000, 1000, model.MicroUSD(90_000)},
		{"cheap model", "gpt-3.5-turbo", 1000, 1000, model.MicroUSD(2_000)},
		{"half micro rounds up", "gpt-3.5-turbo", 1, 0, model.MicroUSD(1)},
		{"half micro rounds up on output", "gpt-3.5-turbo", 0, 1, model.MicroUSD(2)},
		{"unknown model uses default prices", "mystery", 1000, 0, model.MicroUSD(30_000)},
		{"negative counts clamp to zero", "gpt-4", -10, -10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.CostOf(tt.model, tt.in, tt.out); got != tt.want {
				t.Errorf("CostOf(%q, %d, %d) = %d, want %d", tt.model, tt.in, tt.out, got, tt.want)
			}
		})
	}
}

// The same inputs always price to the same amount, and more tokens never cost
// less.
func TestCostOfDeterministicAndMonotonic(t *testing.T) {
	tbl := testTable(t)

	for _, mdl := range tbl.Models() {
		prev := model.Money(-1)
		for tokens := int64(0); tokens <= 5000; tokens += 250 {
			a := tbl.CostOf(mdl, tokens, tokens/2)
			b := tbl.CostOf(mdl, tokens, tokens/2)
			if a != b {
				t.Fatalf("CostOf(%q, %d, %d) not deterministic: %d vs %d", mdl, tokens, tokens/2, a, b)
			}
			if a < prev {
				t.Fatalf("CostOf(%q) decreased at %d tokens: %d < %d", mdl, tokens, a, prev)
			}
			prev = a
		}
	}
}

func TestModelsSorted(t *testing.T) {
	tbl := testTable(t)
	got := tbl.Models()
	want := []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"}
	if len(got) != len(want) {
		t.Fatalf("Models() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Models() = %v, want %v", got, want)
		}
	}
	if tbl.DefaultModel() != "gpt-4" {
		t.Errorf("DefaultModel() = %q, want gpt-4", tbl.DefaultModel())
	}
}
