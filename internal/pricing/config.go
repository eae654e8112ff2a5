package pricing

import (
	"github.com/smoradi/quotameter/internal/config"
	"github.com/smoradi/quotameter/internal/model"
)

// FromConfig builds the price table out of the pricing section.
func FromConfig(cfg config.PricingConfig) (*Table, error) {
	entries := make(map[string]Entry, len(cfg.Models))
	for _, m := range cfg.Models {
		entries[m.Name] = Entry{
			InputPer1K:  model.MicroUSD(m.InputPer1KMicros),
			OutputPer1K: model.MicroUSD(m.OutputPer1KMicros),
		}
	}
	return New(entries, cfg.DefaultModel)
}
