package database

import (
	"fmt"
	"io/fs"
	"sort"

	"simplychain/backend/pkg/logging"
)

// ApplySchema executes every .sql file under dir in the embedded filesystem,
// in lexical order. Schema files are written to be re-runnable (CREATE IF NOT
// EXISTS), so calling this on every startup is safe.
func ApplySchema(db PostgresConn, content fs.FS, dir string, logger logging.Logger) error {
	entries, err := fs.ReadDir(content, dir)
	if err != nil {
		return fmt.Errorf("failed to read schema dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := fs.ReadFile(content, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithFields(logging.Fields{
			"file": name,
		}).Info("Applied schema file")
	}
	return nil
}
