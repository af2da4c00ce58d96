package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	profile := &Profile{
		UserID:              "user-1",
		PreferredCategories: []string{"video-generation"},
		PricePreference:     "free",
		Interests:           []string{"short films"},
		SkillLevel:          "beginner",
		UpdatedAt:           time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveProfile(ctx, profile))

	loaded, err := s.LoadProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, profile.PreferredCategories, loaded.PreferredCategories)
	assert.Equal(t, "free", loaded.PricePreference)
	assert.Equal(t, "beginner", loaded.SkillLevel)
}

func TestRedisStore_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRedisStore_SaveRequiresUserID(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.SaveProfile(context.Background(), &Profile{}))
	assert.Error(t, s.SaveProfile(context.Background(), nil))
}

func TestMerge(t *testing.T) {
	existing := &Profile{
		UserID:              "u",
		PreferredCategories: []string{"video-generation"},
		Interests:           []string{"mystery"},
		PricePreference:     "free",
		SkillLevel:          "beginner",
	}
	extracted := &Profile{
		UserID:              "u",
		PreferredCategories: []string{"video-generation", "audio-generation"},
		Interests:           []string{"thriller"},
		SkillLevel:          "intermediate",
	}

	merged := Merge(existing, extracted)
	assert.Equal(t, []string{"video-generation", "audio-generation"}, merged.PreferredCategories)
	assert.Equal(t, []string{"mystery", "thriller"}, merged.Interests)
	// Empty scalar on the extracted side keeps the existing value.
	assert.Equal(t, "free", merged.PricePreference)
	assert.Equal(t, "intermediate", merged.SkillLevel)
}

func TestMergeNilSides(t *testing.T) {
	p := &Profile{UserID: "u"}
	assert.Equal(t, p, Merge(nil, p))
	assert.Equal(t, p, Merge(p, nil))
}
