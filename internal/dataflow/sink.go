// Package dataflow defines the narrow output contract §6 requires: for
// every mutating statement the engine emits a sequence of positive/negative
// records keyed by the affected table. The materialized-view/dataflow
// subsystem itself is out of scope (§1) — it is an external collaborator
// that implements Sink.
package dataflow

import "github.com/shardkit/shardkit/internal/encoding"

// Record is one positive (insert) or negative (delete) row event. Updates
// are expressed as a negative record for the old row plus a positive record
// for the new one, the usual differential-dataflow convention.
type Record struct {
	Table     string
	Positive  bool
	Values    []encoding.Value
	ShardKind string // left empty by every record internal/sqlengine emits
	SubjectID []byte // likewise left empty
}

// Sink receives mutation records. The core calls Emit synchronously before
// a statement returns and passes Emit's error back to the caller, so Emit
// is expected to be fast or to buffer internally.
type Sink interface {
	Emit(records []Record) error
}

// NopSink discards every record. Used when no dataflow subsystem is wired
// (e.g. in tests, or a core used standalone).
type NopSink struct{}

func (NopSink) Emit([]Record) error { return nil }

// BufferedSink accumulates records in memory, useful for engine tests that
// assert on exactly what was emitted without standing up a real dataflow
// subsystem.
type BufferedSink struct {
	Records []Record
}

func NewBufferedSink() *BufferedSink { return &BufferedSink{} }

func (s *BufferedSink) Emit(records []Record) error {
	s.Records = append(s.Records, records...)
	return nil
}
