package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/internal/memory"
)

func TestBudgetCalculator_Totals(t *testing.T) {
	calc, err := NewBudgetCalculator("")
	require.NoError(t, err)

	res, err := calc.Execute(context.Background(), map[string]any{
		"items": []any{
			map[string]any{"name": "runway", "monthly_price": 15.0},
			map[string]any{"name": "elevenlabs", "monthly_price": 5.0},
			map[string]any{"name": "gimp", "monthly_price": 0.0},
		},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.InDelta(t, 20.0, out["total_monthly"].(float64), 1e-9)
	assert.InDelta(t, 240.0, out["total_yearly"].(float64), 1e-9)
	assert.NotContains(t, out, "warning")
}

func TestBudgetCalculator_AlertRule(t *testing.T) {
	calc, err := NewBudgetCalculator("total_monthly > 50.0")
	require.NoError(t, err)

	res, err := calc.Execute(context.Background(), map[string]any{
		"items": []any{
			map[string]any{"name": "suite", "monthly_price": 80.0},
		},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Contains(t, out, "warning")
}

func TestBudgetCalculator_BadRule(t *testing.T) {
	_, err := NewBudgetCalculator("total_monthly +")
	assert.Error(t, err)
}

func TestClock_Freshness(t *testing.T) {
	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	clock := NewClock(func() time.Time { return fixed })

	cases := []struct {
		updated string
		want    string
	}{
		{"2026-08-10", "fresh"},
		{"2026-06-15", "aging"},
		{"2025-01-01", "stale"},
	}
	for _, tc := range cases {
		res, err := clock.Execute(context.Background(), map[string]any{"name": "tool", "updated_date": tc.updated})
		require.NoError(t, err)

		var out map[string]any
		require.NoError(t, json.Unmarshal(res.Data, &out))
		assert.Equal(t, tc.want, out["freshness"], "updated_date=%s", tc.updated)
	}
}

func TestClock_NowOnly(t *testing.T) {
	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	clock := NewClock(func() time.Time { return fixed })

	res, err := clock.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Equal(t, "2026-08-27 12:00:00", out["now"])
	assert.NotContains(t, out, "freshness")
}

func TestClock_BadDate(t *testing.T) {
	clock := NewClock(nil)
	_, err := clock.Execute(context.Background(), map[string]any{"updated_date": "27-08-2026"})
	assert.Error(t, err)
}

// stubProfiles implements memory.Store for the read capability.
type stubProfiles struct {
	profile *memory.Profile
}

func (s *stubProfiles) LoadProfile(_ context.Context, _ string) (*memory.Profile, error) {
	if s.profile == nil {
		return nil, memory.ErrProfileNotFound
	}
	return s.profile, nil
}
func (s *stubProfiles) SaveProfile(_ context.Context, p *memory.Profile) error {
	s.profile = p
	return nil
}
func (s *stubProfiles) Close() error { return nil }

func TestMemoryRead_Found(t *testing.T) {
	store := &stubProfiles{profile: &memory.Profile{UserID: "u1", PricePreference: "free"}}
	mr := NewMemoryRead(store)

	res, err := mr.Execute(context.Background(), map[string]any{"user_id": "u1"})
	require.NoError(t, err)

	var out struct {
		UserID  string          `json:"user_id"`
		Profile *memory.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	require.NotNil(t, out.Profile)
	assert.Equal(t, "free", out.Profile.PricePreference)
}

func TestMemoryRead_MissingProfileIsNotAnError(t *testing.T) {
	mr := NewMemoryRead(&stubProfiles{})

	res, err := mr.Execute(context.Background(), map[string]any{"user_id": "nobody"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Nil(t, out["profile"])
}
