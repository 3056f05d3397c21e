package execution

import (
	sqlitestore "cryptomomentum-corev1/internal/store/sqlite"
)

// Fill is one executed order leg handed to the journal, aliased onto
// store/sqlite's wire type so paper.go and live.go never construct the
// SQLite row shape directly.
type Fill = sqlitestore.Fill

// Journal is a thin adapter over the shared SQLite writer (internal/store/
// sqlite), kept from the teacher's internal/execution/journal.go as the
// execution package's own narrow view of "record a fill" — superseded as
// a schema owner by store/sqlite.Writer (which also owns the TF-candle
// backfill table sharing the same database file), but kept here so the
// executors depend on an execution-scoped interface rather than reaching
// into the store package directly.
type Journal struct {
	writer *sqlitestore.Writer
}

// NewJournal wraps an already-open store/sqlite.Writer for fill recording.
func NewJournal(writer *sqlitestore.Writer) *Journal {
	return &Journal{writer: writer}
}

// RecordFill persists a fill to the shared journal.
func (j *Journal) RecordFill(f Fill) error {
	return j.writer.RecordFill(f)
}
