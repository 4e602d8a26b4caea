package dbx

import "database/sql"

// Int64Or returns n's value, or def when the column was NULL.
func Int64Or(n sql.NullInt64, def int64) int64 {
	if !n.Valid {
		return def
	}
	return n.Int64
}

// StringOr returns s's value, or def when the column was NULL.
func StringOr(s sql.NullString, def string) string {
	if !s.Valid {
		return def
	}
	return s.String
}
