package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, productID string, rate string, endDate time.Time) Discount {
	t.Helper()

	d, err := New(productID, decimal.RequireFromString(rate), endDate)
	require.NoError(t, err)
	return d
}

func TestNew_Valid(t *testing.T) {
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	d := mustNew(t, "p1", "0.25", end)

	assert.Equal(t, "p1", d.ProductID())
	assert.True(t, decimal.RequireFromString("0.25").Equal(d.Rate()))
	assert.True(t, end.Equal(d.EndDate()))
}

func TestNew_ZeroRateAllowed(t *testing.T) {
	_, err := New("p1", decimal.Zero, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestNew_NegativeRate(t *testing.T) {
	_, err := New("p1", decimal.RequireFromString("-0.1"), time.Now())
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestNew_RateOfOneRejected(t *testing.T) {
	_, err := New("p1", decimal.NewFromInt(1), time.Now())
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestNew_RateAboveOne(t *testing.T) {
	_, err := New("p1", decimal.RequireFromString("1.5"), time.Now())
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestNew_ZeroEndDate(t *testing.T) {
	_, err := New("p1", decimal.RequireFromString("0.1"), time.Time{})
	require.ErrorIs(t, err, ErrZeroEndDate)
}

func TestActiveAt(t *testing.T) {
	end := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	d := mustNew(t, "p1", "0.10", end)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"day before", time.Date(2026, 6, 14, 23, 59, 59, 0, time.UTC), true},
		{"morning of end date", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), true},
		{"last second of end date", time.Date(2026, 6, 15, 23, 59, 59, 0, time.UTC), true},
		{"day after", time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC), false},
		{"next month", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), false},
		{"next year", time.Date(2027, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"previous year", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ActiveAt(tt.at))
		})
	}
}

func TestActiveAt_TimezoneNormalized(t *testing.T) {
	end := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	d := mustNew(t, "p1", "0.10", end)

	// 2026-06-16 02:00 +0300 is still 2026-06-15 in UTC.
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.True(t, d.ActiveAt(time.Date(2026, 6, 16, 2, 0, 0, 0, loc)))
}

func TestEqual(t *testing.T) {
	end := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	a := mustNew(t, "p1", "0.10", end)
	b := mustNew(t, "p1", "0.10", end.Add(5*time.Hour))
	c := mustNew(t, "p1", "0.20", end)
	d := mustNew(t, "p2", "0.10", end)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}
