package store

import "github.com/alejandrodnm/hodlbook/internal/domain"

// Resolutions returns the records of personal that the personal stream is
// authoritative for (filled or closed).
func Resolutions(personal []domain.Order) []domain.Order {
	var out []domain.Order
	for _, o := range personal {
		if o.Status.IsResolution() {
			out = append(out, o)
		}
	}
	return out
}

// SyncTransitions copies filled/closed statuses from personal records into
// the matching public records. Only the status field changes and nothing is
// purged, so a filled order stays visible in the public store until the
// public stream itself reports it. Returns the number of records patched.
func SyncTransitions(personal []domain.Order, public *Store) int {
	return public.PatchStatus(Resolutions(personal))
}
