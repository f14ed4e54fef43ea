package volume

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/apindex/internal/normalize"
)

var labelNumber = regexp.MustCompile(`\d+`)

// Manifest is the on-disk description of one volume and its payloads.
type Manifest struct {
	Druid           string `yaml:"druid"`
	Label           string `yaml:"label"`
	Title           string `yaml:"title"`
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	TotalPages      int    `yaml:"total_pages"`
	Files           []File `yaml:"files"`
	TEI             string `yaml:"tei"`
	ContentMetadata string `yaml:"content_metadata"`
}

// LoadManifest decodes a YAML manifest. Payload references are returned as written;
// see Resolve.
func LoadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Druid == "" {
		return nil, errors.New("manifest: druid is required")
	}
	if m.TEI == "" {
		return nil, errors.New("manifest: tei is required")
	}
	return &m, nil
}

// Resolve rewrites relative payload references against the location of the manifest.
func (m *Manifest) Resolve(manifestURI string) {
	m.TEI = resolveRef(manifestURI, m.TEI)
	if m.ContentMetadata != "" {
		m.ContentMetadata = resolveRef(manifestURI, m.ContentMetadata)
	}
}

func resolveRef(base, ref string) string {
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	scheme := ""
	if i := strings.Index(base, "://"); i >= 0 {
		scheme, base = base[:i+3], base[i+3:]
	}
	return scheme + path.Join(path.Dir(base), ref)
}

// Context builds the immutable volume context. Unparsable dates and labels without a
// number are logged and left out.
func (m *Manifest) Context(log *slog.Logger) Context {
	c := Context{
		SourceID:   m.Druid,
		Label:      m.Label,
		Title:      m.Title,
		Files:      m.Files,
		TotalPages: m.TotalPages,
	}
	if n := labelNumber.FindString(m.Label); n != "" {
		c.Number, _ = strconv.Atoi(n)
	} else if m.Label != "" {
		log.Warn("volume label carries no number", "label", m.Label)
	}
	c.StartDate = manifestDate(log, "start_date", m.StartDate)
	c.EndDate = manifestDate(log, "end_date", m.EndDate)
	return c
}

func manifestDate(log *slog.Logger, field, raw string) *normalize.Date {
	if raw == "" {
		return nil
	}
	d, err := normalize.ParseDate(raw)
	if err != nil {
		log.Warn("volume date dropped", "field", field, "error", err)
		return nil
	}
	return &d
}
