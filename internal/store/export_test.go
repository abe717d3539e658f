package store

import "time"

// SetClock replaces the store's time source.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}
