package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// Attrs holds an element's attributes keyed by local name ("xml:id" is "id").
type Attrs map[string]string

// Handler receives the parse events of one document, in document order. Returning
// an error stops the stream.
type Handler interface {
	StartElement(name string, attrs Attrs) error
	EndElement(name string) error
	Text(s string) error
}

// Stream tokenizes TEI markup from r and feeds every element and character run to h.
// Element and attribute names lose their namespace prefix; text is NFC-normalized.
// Any syntax error aborts the whole document.
func Stream(r io.Reader, h Handler) error {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse tei: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make(Attrs, len(t.Attr))
			for _, a := range t.Attr {
				attrs[a.Name.Local] = a.Value
			}
			err = h.StartElement(t.Name.Local, attrs)
		case xml.EndElement:
			err = h.EndElement(t.Name.Local)
		case xml.CharData:
			if len(t) > 0 {
				err = h.Text(norm.NFC.String(string(t)))
			}
		}
		if err != nil {
			return err
		}
	}
}
