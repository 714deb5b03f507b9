package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/groundworkhq/campaigner/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets a file path DSN for the SQLite store.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// identPattern is the allow-list for runtime-interpolated identifiers. Dynamic
// relation names and columns must match it before they reach generated SQL.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to interpolate as a table or
// column name.
func ValidIdentifier(s string) bool {
	return len(s) <= 63 && identPattern.MatchString(s)
}

// validateRelation checks a relation name and column set against the
// identifier allow-list.
func validateRelation(name string, columns []string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("invalid relation name %q", name)
	}
	if len(columns) == 0 {
		return fmt.Errorf("relation %q needs at least one column", name)
	}
	for _, col := range columns {
		if !ValidIdentifier(col) {
			return fmt.Errorf("invalid column name %q in relation %q", col, name)
		}
	}
	return nil
}

func leadTableName(orgID int64) string {
	return fmt.Sprintf("leads_org_%d", orgID)
}

// marshalFilters serializes a campaign filter map for storage. Empty maps are
// stored as empty strings.
func marshalFilters(filters map[string]any) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("marshal filters: %w", err)
	}
	return string(data), nil
}

// unmarshalFilters is the inverse of marshalFilters. A corrupt blob is logged
// and dropped rather than failing the row read.
func unmarshalFilters(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var filters map[string]any
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		slog.Error("store: corrupt filters blob dropped", "error", err)
		return nil
	}
	return filters
}

func marshalStateData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal state data: %w", err)
	}
	return string(raw), nil
}

func unmarshalStateData(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	data := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Error("store: corrupt state data blob dropped", "error", err)
		return nil
	}
	return data
}

func marshalProfileFields(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal profile fields: %w", err)
	}
	return string(raw), nil
}

func unmarshalProfileFields(raw string) map[string]string {
	fields := make(map[string]string)
	if raw == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		slog.Error("store: corrupt profile fields blob dropped", "error", err)
		return make(map[string]string)
	}
	return fields
}

// copyLead clones a lead row so callers cannot mutate stored rows.
func copyLead(l models.Lead) models.Lead {
	out := make(models.Lead, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
