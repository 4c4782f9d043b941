package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// migration transforms a cache file from one version to the next.
type migration struct {
	from    int
	to      int
	migrate func(raw json.RawMessage) (json.RawMessage, error)
}

// migrations is the ordered list of cache file migrations.
var migrations = []migration{
	{from: 0, to: 1, migrate: migrateUnversioned},
}

// migrateUnversioned converts the pre-versioning cache layout
//
//	{"expiry": "<RFC 3339>", "arls": [{"region", "value", "expiry"}]}
//
// into version 1. The content hash is left empty so the next refresh
// re-extracts.
func migrateUnversioned(raw json.RawMessage) (json.RawMessage, error) {
	var legacy struct {
		Expiry json.RawMessage `json:"expiry"`
		ARLs   json.RawMessage `json:"arls"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}
	if legacy.Expiry == nil {
		return nil, errors.New("missing expiry")
	}
	records := legacy.ARLs
	if records == nil || string(records) == "null" {
		records = json.RawMessage("[]")
	}
	return json.Marshal(map[string]json.RawMessage{
		"version":        json.RawMessage("1"),
		"overall_expiry": legacy.Expiry,
		"content_hash":   json.RawMessage(`""`),
		"records":        records,
	})
}

// migrateFile runs all necessary migrations on the cache file and returns
// the migrated bytes. Before each migration step, the current file is
// backed up.
func migrateFile(path string, data []byte, fromVersion int) ([]byte, error) {
	current := fromVersion

	for _, m := range migrations {
		if m.from != current {
			continue
		}

		backupPath := fmt.Sprintf("%s.v%d.bak", path, current)
		if err := os.WriteFile(backupPath, data, 0o600); err != nil {
			return nil, fmt.Errorf("backup before migration v%d→v%d: %w", m.from, m.to, err)
		}

		migrated, err := m.migrate(json.RawMessage(data))
		if err != nil {
			return nil, fmt.Errorf("migration v%d→v%d: %w", m.from, m.to, err)
		}

		tmpPath := path + ".tmp"
		if err := os.WriteFile(tmpPath, migrated, 0o600); err != nil {
			return nil, fmt.Errorf("write migrated cache: %w", err)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("rename migrated cache: %w", err)
		}

		data = migrated
		current = m.to
	}

	if current != currentVersion {
		return nil, fmt.Errorf("no migration path from version %d to %d", fromVersion, currentVersion)
	}
	return data, nil
}
