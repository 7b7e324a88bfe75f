package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bus-tracker/internal/transit"
)

// Columns every positions table must carry.
var requiredColumns = []string{"bus_id", "route_number", "latitude", "longitude"}

// Columns selected when present.
var optionalColumns = []string{"heading", "speed", "current_location", "deviation", "timestamp", "fix_valid", "gps_valid"}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Source reads the latest vehicle positions from a Postgres table. Rows are
// returned as raw records in the persisted-row shape so they pass through the
// same normalization as feed records.
type Source struct {
	db     *sql.DB
	schema string
	table  string

	mu      sync.Mutex
	columns []string // detected on first successful fetch
}

// NewSource accepts "table" or "schema.table".
func NewSource(db *sql.DB, table string) *Source {
	schema, name := splitTable(table)
	return &Source{db: db, schema: schema, table: name}
}

func (s *Source) FetchVehicles(ctx context.Context) ([]transit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.columns == nil {
		present, err := hasColumns(ctx, s.db, s.schema, s.table, append(append([]string{}, requiredColumns...), optionalColumns...)...)
		if err != nil {
			return nil, fmt.Errorf("introspect %s.%s columns: %w", s.schema, s.table, err)
		}
		cols, err := selectColumns(present)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.schema, s.table, err)
		}
		s.columns = cols
	}
	return FetchBusPositions(ctx, s.db, s.schema, s.table, s.columns)
}

// FetchBusPositions selects the given columns, cast to text, and returns
// one record per row keyed by column name. NULL columns are omitted.
func FetchBusPositions(ctx context.Context, db *sql.DB, schema, table string, columns []string) ([]transit.Record, error) {
	rows, err := db.QueryContext(ctx, positionsQuery(schema, table, columns))
	if err != nil {
		return nil, fmt.Errorf("query bus positions: %w", err)
	}
	defer rows.Close()

	var out []transit.Record
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, rowRecord(columns, values))
	}
	return out, rows.Err()
}

func positionsQuery(schema, table string, columns []string) string {
	sel := make([]string, len(columns))
	for i, c := range columns {
		id := pgx.Identifier{c}.Sanitize()
		sel[i] = id + "::text AS " + id
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), pgx.Identifier{schema, table}.Sanitize())
}

func selectColumns(present map[string]bool) ([]string, error) {
	var missing []string
	cols := make([]string, 0, len(requiredColumns)+len(optionalColumns))
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
		cols = append(cols, c)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %s", strings.Join(missing, ", "))
	}
	for _, c := range optionalColumns {
		if present[c] {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

func rowRecord(columns []string, values []sql.NullString) transit.Record {
	rec := make(transit.Record, len(columns))
	for i, c := range columns {
		if values[i].Valid {
			rec[c] = values[i].String
		}
	}
	return rec
}

func splitTable(table string) (schema, name string) {
	table = strings.TrimSpace(table)
	if s, n, ok := strings.Cut(table, "."); ok {
		return s, n
	}
	return "public", table
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
