package flow

import "context"

// TendenciesMemory supplies known behavioral tendencies for a user, used to
// personalize coaching suggestions. A richer long-term memory backend can be
// dropped in here later.
type TendenciesMemory interface {
	Tendencies(ctx context.Context, userID int64) []string
}

// StaticTendenciesMemory is a fixed-entry TendenciesMemory, the default
// placeholder backing.
type StaticTendenciesMemory struct {
	Entries []string
}

func (m StaticTendenciesMemory) Tendencies(context.Context, int64) []string {
	return m.Entries
}
