package infra

import "github.com/google/uuid"

// IsUUID reports whether id can address a UUID primary key. Repositories use
// it to answer not-found before Postgres rejects the cast.
// Only the canonical 36-character form is accepted; uuid.Parse also takes the
// urn: prefix, which Postgres does not.
func IsUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
