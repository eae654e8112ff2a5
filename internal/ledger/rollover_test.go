package ledger

import (
	"testing"
	"time"

	"github.com/smoradi/quotameter/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextPeriodEnd(t *testing.T) {
	tests := []struct {
		name string
		end  time.Time
		now  time.Time
		want time.Time
	}{
		{
			name: "one month elapsed",
			end:  date(2025, time.March, 1),
			now:  date(2025, time.March, 15),
			want: date(2025, time.April, 1),
		},
		{
			name: "now exactly at boundary",
			end:  date(2025, time.March, 1),
			now:  date(2025, time.March, 1),
			want: date(2025, time.April, 1),
		},
		{
			name: "several idle months skipped",
			end:  date(2025, time.January, 1),
			now:  date(2025, time.June, 10),
			want: date(2025, time.July, 1),
		},
		{
			name: "year boundary",
			end:  date(2024, time.December, 1),
			now:  date(2025, time.January, 20),
			want: date(2025, time.February, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextPeriodEnd(tt.end, tt.now); !got.Equal(tt.want) {
				t.Errorf("nextPeriodEnd(%v, %v) = %v, want %v", tt.end, tt.now, got, tt.want)
			}
		})
	}
}

func TestFirstPeriodEnd(t *testing.T) {
	got := firstPeriodEnd(time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC))
	want := date(2025, time.April, 1)
	if !got.Equal(want) {
		t.Errorf("firstPeriodEnd = %v, want %v", got, want)
	}

	// December wraps into the next year
	got = firstPeriodEnd(date(2025, time.December, 31))
	want = date(2026, time.January, 1)
	if !got.Equal(want) {
		t.Errorf("firstPeriodEnd = %v, want %v", got, want)
	}
}

func TestApplyRollover(t *testing.T) {
	q := &model.QuotaConfig{
		MonthlyTokenLimit: 100_000,
		MonthlyCostLimit:  model.MicroUSD(200_000),
		TokensUsed:        42_000,
		CostUsed:          model.MicroUSD(150_000),
		PeriodEnd:         date(2025, time.March, 1),
	}

	if applyRollover(q, date(2025, time.February, 28)) {
		t.Fatal("rollover happened before the boundary")
	}
	if q.TokensUsed != 42_000 {
		t.Fatal("counters touched without rollover")
	}

	if !applyRollover(q, date(2025, time.March, 1)) {
		t.Fatal("rollover did not happen at the boundary")
	}
	if q.TokensUsed != 0 || q.CostUsed != 0 {
		t.Errorf("counters not reset: tokens=%d cost=%d", q.TokensUsed, q.CostUsed)
	}
	if !q.PeriodEnd.Equal(date(2025, time.April, 1)) {
		t.Errorf("PeriodEnd = %v, want 2025-04-01", q.PeriodEnd)
	}
	// limits survive the reset
	if q.MonthlyTokenLimit != 100_000 || q.MonthlyCostLimit != 200_000 {
		t.Error("limits changed by rollover")
	}
}
