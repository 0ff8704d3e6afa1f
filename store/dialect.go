package store

import (
	"fmt"
	"strings"
	"time"
)

// Dialect holds the SQL that differs between drivers. Queries are written
// with ? placeholders and the dialect's Now; Q rewrites them per driver.
type Dialect interface {
	Placeholder(n int) string
	Now() string
	Bool(b bool) any
	Schema() string
}

// Timestamps are stored in UTC on both drivers.
type sqliteDialect struct{}

func (sqliteDialect) Placeholder(_ int) string { return "?" }
func (sqliteDialect) Now() string              { return "datetime('now')" }
func (sqliteDialect) Schema() string           { return schemaSQLite }

// Bool returns 0 or 1, SQLite has no boolean column type.
func (sqliteDialect) Bool(b bool) any {
	if b {
		return 1
	}
	return 0
}

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Now() string              { return "NOW()" }
func (postgresDialect) Schema() string           { return schemaPostgres }
func (postgresDialect) Bool(b bool) any          { return b }

// parseTime converts a scanned timestamp value to time.Time.
// Handles both SQLite (returns string) and Postgres (returns time.Time).
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		if t == "" {
			return time.Time{}
		}
		for _, layout := range []string{
			"2006-01-02 15:04:05",
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05.999999-07:00",
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// parseBool converts a scanned boolean column. SQLite stores 0/1 integers.
func parseBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case []byte:
		return string(b) == "1" || strings.EqualFold(string(b), "true")
	case string:
		return b == "1" || strings.EqualFold(b, "true")
	}
	return false
}

// rebind rewrites ? placeholders with the dialect's numbered form.
func rebind(query string, d Dialect) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
