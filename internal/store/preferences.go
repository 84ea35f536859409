package store

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

func (s *Store) loadPreferences(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT guid, enabled FROM plugin_preferences")
	if err != nil {
		return fmt.Errorf("load plugin preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]bool)
	for rows.Next() {
		var (
			guid    string
			enabled int
		)
		if err := rows.Scan(&guid, &enabled); err != nil {
			return fmt.Errorf("scan plugin preference: %w", err)
		}
		prefs[normalizeGUID(guid)] = enabled != 0
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate plugin preferences: %w", err)
	}

	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
	return nil
}

// IsPluginEnabled reports the stored preference for guid. Plugins without a
// stored preference are enabled.
func (s *Store) IsPluginEnabled(guid string) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, ok := s.prefs[normalizeGUID(guid)]
	return !ok || enabled
}

// SetPluginEnabled persists the preference for guid and updates the in-memory view.
func (s *Store) SetPluginEnabled(ctx context.Context, guid string, enabled bool) error {
	guid = normalizeGUID(guid)
	if guid == "" {
		return fmt.Errorf("set plugin preference: guid is required")
	}
	value := 0
	if enabled {
		value = 1
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO plugin_preferences (guid, enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(guid) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		guid, value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save plugin preference: %w", err)
	}
	s.mu.Lock()
	s.prefs[guid] = enabled
	s.mu.Unlock()
	return nil
}

// Preferences returns a copy of every stored preference.
func (s *Store) Preferences() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.prefs)
}

func normalizeGUID(guid string) string {
	return strings.ToLower(strings.TrimSpace(guid))
}
