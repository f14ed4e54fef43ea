package segment

import "github.com/dgallion1/apindex/internal/record"

// Sink accepts finished records. The engine calls Add exactly once per record and
// never batches or commits; that is the sink's business.
type Sink interface {
	Add(rec *record.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec *record.Record) error

func (f SinkFunc) Add(rec *record.Record) error {
	return f(rec)
}
