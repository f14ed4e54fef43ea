// Package sink provides simple record sinks: in-memory, JSON lines and fan-out.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dgallion1/apindex/internal/record"
	"github.com/dgallion1/apindex/internal/segment"
)

// Memory keeps every record it receives. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records []*record.Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the records added so far, in order.
func (m *Memory) Records() []*record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*record.Record(nil), m.records...)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// JSONLines writes one JSON object per record, fields in insertion order.
type JSONLines struct {
	mu sync.Mutex
	w  *bufio.Writer
	n  int
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriter(w)}
}

func (j *JSONLines) Add(rec *record.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}
	j.n++
	return nil
}

// Count returns the number of records written.
func (j *JSONLines) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.n
}

// Flush writes any buffered output.
func (j *JSONLines) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// Fanout adds each record to every sink in turn and stops at the first error.
type Fanout []segment.Sink

func (f Fanout) Add(rec *record.Record) error {
	for _, s := range f {
		if err := s.Add(rec); err != nil {
			return err
		}
	}
	return nil
}
