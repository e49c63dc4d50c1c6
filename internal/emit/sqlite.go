package emit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/glebarez/go-sqlite"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/postgres"
)

// OpenSQLite opens (creating if needed) a single-file run archive at path.
func OpenSQLite(ctx context.Context, path string) (*SQLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite archive %s: %w", path, err)
	}
	sink, err := NewSQLSink(ctx, postgres.Wrap(db), SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}
