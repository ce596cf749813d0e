package domain

import (
	"encoding/json"
	"fmt"
)

// migration rewrites a generic config document from one schema version to the
// next. Index i migrates version i+1 to version i+2.
type migration func(doc map[string]any) error

var migrations = []migration{
	migrateV1toV2,
}

// migrate applies every migration from the stored version up to the current
// SchemaVersion and returns the rewritten document bytes.
func migrate(data []byte, from int) ([]byte, error) {
	if from < 1 {
		return nil, fmt.Errorf("invalid schema version %d: %w", from, ErrIncompatibleSchema)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing campaign config for migration: %w", err)
	}
	for v := from; v < SchemaVersion; v++ {
		if err := migrations[v-1](doc); err != nil {
			return nil, fmt.Errorf("migrating schema v%d to v%d: %w", v, v+1, err)
		}
		doc["schema_version"] = v + 1
	}
	return json.Marshal(doc)
}

// migrateV1toV2 introduces the accessed_at timestamp, defaulting it to
// updated_at as the original data carried no access times.
func migrateV1toV2(doc map[string]any) error {
	if _, ok := doc["accessed_at"]; ok {
		return nil
	}
	updated, ok := doc["updated_at"].(string)
	if !ok {
		return fmt.Errorf("document has no updated_at to derive accessed_at from")
	}
	doc["accessed_at"] = updated
	return nil
}
