package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"shiftstore/internal/shiftstore"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultTable is the table read from SQLite catalogs.
const DefaultTable = "sources"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReadSQLite reads detections written to a SQLite database by an external
// detector. The table needs id, x, y, mag, fwhm and flags columns.
func ReadSQLite(ctx context.Context, path, table string) ([]shiftstore.Source, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, x, y, mag, COALESCE(fwhm, 0), COALESCE(flags, 0) FROM %s ORDER BY id;`, table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var sources []shiftstore.Source
	for rows.Next() {
		var s shiftstore.Source
		if err := rows.Scan(&s.ID, &s.X, &s.Y, &s.Mag, &s.FWHM, &s.Flags); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
