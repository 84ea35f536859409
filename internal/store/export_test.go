package store

import "context"

// ExecForTest runs raw SQL against the database.
func (s *Store) ExecForTest(query string) error {
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}
