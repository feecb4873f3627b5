package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"backoffice/pkg/errors"
)

// RecordRepository writes caller-shaped flat records into caller-named
// tables and reads them back. The row shape is supplied per call, never
// fixed here.
type RecordRepository struct {
	db DBTX
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Insert builds and executes a parameterized insert and returns the full
// inserted row, so generated columns (id, timestamps) are visible to the
// caller. Values are coerced to JSON-safe scalars. Constraint violations
// surface as ErrIntegrity, distinct from generic database errors.
func (r *RecordRepository) Insert(ctx context.Context, table string, record map[string]interface{}) (map[string]interface{}, error) {
	if len(record) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty record")
	}
	if !identifierPattern.MatchString(table) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid table name %q", table)
	}

	// Deterministic column order keeps queries stable and testable.
	columns := make([]string, 0, len(record))
	for column := range record {
		if !identifierPattern.MatchString(column) {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid column name %q", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	values := make([]interface{}, len(columns))
	for i, column := range columns {
		quoted[i] = pq.QuoteIdentifier(column)
		placeholders[i] = "$" + strconv.Itoa(i+1)
		values[i] = record[column]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryxContext(ctx, query, values...)
	if err != nil {
		return nil, classifyDBError(err, "insert record")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classifyDBError(err, "insert record")
		}
		return nil, errors.Wrap(errors.ErrInternal, "insert returned no row")
	}

	row := make(map[string]interface{})
	if err := rows.MapScan(row); err != nil {
		return nil, errors.Wrap(err, "scan inserted row")
	}

	return coerceRow(row), nil
}

// Query runs a read-only SQL statement and returns its rows as JSON-safe
// maps. Only SELECT statements are accepted.
func (r *RecordRepository) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(query))
	if !strings.HasPrefix(trimmed, "SELECT") {
		return nil, errors.Wrap(errors.ErrInvalidInput, "only SELECT statements are allowed")
	}

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, classifyDBError(err, "execute query")
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		results = append(results, coerceRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err, "read rows")
	}

	return results, nil
}

// classifyDBError separates constraint violations from generic database
// failures. Postgres error classes 23xxx are integrity constraint
// violations.
func classifyDBError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), "23") {
		return errors.Wrapf(errors.ErrIntegrity, "%s: %s", op, pqErr.Message)
	}
	return errors.Wrapf(err, "%s", op)
}

// coerceRow converts driver-native values into JSON-safe scalars: times
// become RFC 3339 strings and numeric byte slices become float64 where
// they parse, plain strings otherwise.
func coerceRow(row map[string]interface{}) map[string]interface{} {
	for key, value := range row {
		switch v := value.(type) {
		case time.Time:
			row[key] = v.Format(time.RFC3339)
		case []byte:
			s := string(v)
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				row[key] = f
			} else {
				row[key] = s
			}
		}
	}
	return row
}
