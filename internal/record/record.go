// Package record holds the finished index records the segmentation engine emits.
package record

import (
	"bytes"
	"encoding/json"

	"github.com/dgallion1/apindex/internal/fields"
)

// Kind distinguishes per-page records from per-section aggregates.
type Kind string

const (
	KindPage    Kind = "page"
	KindSection Kind = "section"
)

// Record is one index document.
type Record struct {
	ID     string      // Page id, or <druid>_section_<n>
	Kind   Kind        // Page or section
	Fields *fields.Map // Ordered field values
}

// Druid returns the volume identifier stored on the record, if any.
func (r *Record) Druid() string {
	v, _ := r.Fields.Get(fields.Druid)
	s, _ := v.(string)
	return s
}

// String returns the single value stored under key as a string.
func (r *Record) String(key string) string {
	v, _ := r.Fields.Get(key)
	s, _ := v.(string)
	return s
}

// MarshalJSON renders the record as a flat index document with "id" first.
func (r *Record) MarshalJSON() ([]byte, error) {
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	body, err := r.Fields.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.Write(id)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
