// Package memory persists durable user-preference signals across sessions.
package memory

import (
	"context"
	"time"

	"github.com/rendis/wayfind/pkg/schema"
)

// Profile is the distilled long-term record for one user.
type Profile struct {
	UserID              string    `json:"user_id"`
	PreferredCategories []string  `json:"preferred_categories,omitempty"`
	PricePreference     string    `json:"price_preference,omitempty"`
	Interests           []string  `json:"interests,omitempty"`
	SkillLevel          string    `json:"skill_level,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Store is the long-term memory contract. Implementations must be safe for
// concurrent use.
type Store interface {
	LoadProfile(ctx context.Context, userID string) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error
	Close() error
}

// ErrProfileNotFound is returned when no profile exists for the user.
var ErrProfileNotFound = schema.NewError(schema.ErrCodeNotFound, "user profile not found")

// Merge folds freshly extracted preferences into an existing profile.
// List fields merge as order-preserving unions, scalar fields are
// last-writer-wins when the new value is non-empty.
func Merge(existing, extracted *Profile) *Profile {
	if existing == nil {
		return extracted
	}
	if extracted == nil {
		return existing
	}
	merged := *existing
	merged.PreferredCategories = unionStrings(existing.PreferredCategories, extracted.PreferredCategories)
	merged.Interests = unionStrings(existing.Interests, extracted.Interests)
	if extracted.PricePreference != "" {
		merged.PricePreference = extracted.PricePreference
	}
	if extracted.SkillLevel != "" {
		merged.SkillLevel = extracted.SkillLevel
	}
	merged.UpdatedAt = extracted.UpdatedAt
	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
