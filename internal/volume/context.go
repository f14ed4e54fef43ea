// Package volume describes the volume being indexed: its immutable metadata, the
// manifest it is loaded from, and the page id to image sequence table.
package volume

import (
	"log/slog"
	"strconv"

	"github.com/dgallion1/apindex/internal/fields"
	"github.com/dgallion1/apindex/internal/normalize"
)

// CollectionName is stored on every record of this index.
const CollectionName = "ap"

// File describes a companion artifact of the volume (PDF, TEI, images).
type File struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
	Size int64  `yaml:"size" json:"size"`
}

// Context is the volume metadata shared by every record of one document. It is
// built once and never mutated.
type Context struct {
	SourceID   string
	Label      string
	Number     int // 0 when the label carries no number
	Title      string
	StartDate  *normalize.Date
	EndDate    *normalize.Date
	Files      []File
	TotalPages int
}

// Constants returns a fresh field map holding the volume constant fields.
func (c Context) Constants(log *slog.Logger) *fields.Map {
	m := fields.NewMap()
	fields.Assign(log, m, fields.Collection, CollectionName)
	fields.Assign(log, m, fields.Druid, c.SourceID)
	if c.Number > 0 {
		fields.Assign(log, m, fields.VolumeNumber, strconv.Itoa(c.Number))
	}
	if c.Label != "" {
		fields.Assign(log, m, fields.VolumeLabel, c.Label)
	}
	if c.Title != "" {
		fields.Assign(log, m, fields.VolumeTitle, c.Title)
	}
	if c.StartDate != nil {
		fields.Assign(log, m, fields.VolumeStart, c.StartDate.IndexValue())
	}
	if c.EndDate != nil {
		fields.Assign(log, m, fields.VolumeEnd, c.EndDate.IndexValue())
	}
	for _, f := range c.Files {
		fields.Assign(log, m, fields.VolumeFileName, f.Name)
		fields.Assign(log, m, fields.VolumeFileSize, f.Size)
	}
	if c.TotalPages > 0 {
		fields.Assign(log, m, fields.VolumePages, c.TotalPages)
	}
	return m
}
