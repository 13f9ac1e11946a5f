package db

import "time"

// nilIfZeroTime returns nil for the zero time so the column stores NULL
// instead of 0001-01-01.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nilIfEmpty returns nil for the empty string so the column stores NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
