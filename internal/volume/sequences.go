package volume

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// SequenceTable maps a page id to its image sequence number. It is built once per
// volume and only read afterwards.
type SequenceTable map[string]int

// Lookup returns the sequence number of page id.
func (t SequenceTable) Lookup(id string) (int, bool) {
	n, ok := t[id]
	return n, ok
}

type contentMetadata struct {
	Resources []struct {
		ID       string `xml:"id,attr"`
		Sequence string `xml:"sequence,attr"`
		Files    []struct {
			ID string `xml:"id,attr"`
		} `xml:"file"`
	} `xml:"resource"`
}

// LoadSequences reads a content metadata document and indexes every file of every
// resource by its id without extension. Resources with a non-numeric sequence are
// logged and skipped.
func LoadSequences(r io.Reader, log *slog.Logger) (SequenceTable, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var cm contentMetadata
	if err := dec.Decode(&cm); err != nil {
		return nil, fmt.Errorf("decode content metadata: %w", err)
	}

	table := make(SequenceTable)
	for _, res := range cm.Resources {
		seq, err := strconv.Atoi(strings.TrimSpace(res.Sequence))
		if err != nil {
			log.Warn("non-numeric resource sequence", "resource", res.ID, "sequence", res.Sequence)
			continue
		}
		for _, f := range res.Files {
			id := strings.TrimSuffix(f.ID, path.Ext(f.ID))
			if id == "" {
				continue
			}
			if prev, ok := table[id]; ok {
				if prev != seq {
					log.Warn("page id listed under two sequences", "page_id", id, "kept", prev, "discarded", seq)
				}
				continue
			}
			table[id] = seq
		}
	}
	return table, nil
}
