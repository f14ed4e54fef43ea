package segment

import (
	"strings"

	"github.com/dgallion1/apindex/internal/fields"
)

// State is the engine's position in the document's region structure.
type State int

const (
	StateHeader State = iota // anywhere outside front, body and back
	StateFront
	StateBodyOutsideSection
	StateBodyInsideSection
	StateBackOutsideSection
	StateBackInsideSection
)

func (s State) String() string {
	switch s {
	case StateFront:
		return "front"
	case StateBodyOutsideSection:
		return "body-outside-section"
	case StateBodyInsideSection:
		return "body-inside-section"
	case StateBackOutsideSection:
		return "back-outside-section"
	case StateBackInsideSection:
		return "back-inside-section"
	default:
		return "header"
	}
}

// inText reports whether text in this state feeds pages, sections and catch-all text.
func (s State) inText() bool {
	return s >= StateBodyOutsideSection
}

// withSection moves between the inside/outside variants of the body and back states.
func (s State) withSection(open bool) State {
	switch s {
	case StateBodyOutsideSection, StateBodyInsideSection:
		if open {
			return StateBodyInsideSection
		}
		return StateBodyOutsideSection
	case StateBackOutsideSection, StateBackInsideSection:
		if open {
			return StateBackInsideSection
		}
		return StateBackOutsideSection
	}
	return s
}

// latch is a one-shot capture guard, armed at section start.
type latch struct {
	armed bool
}

func (l *latch) arm()    { l.armed = true }
func (l *latch) disarm() { l.armed = false }

// fire reports whether the latch was armed, and disarms it.
func (l *latch) fire() bool {
	ok := l.armed
	l.armed = false
	return ok
}

// textBuffer accumulates catch-all text: each run has its whitespace collapsed and
// runs are joined by a single space.
type textBuffer struct {
	b strings.Builder
}

func (t *textBuffer) add(run string) {
	run = collapse(run)
	if run == "" {
		return
	}
	if t.b.Len() > 0 {
		t.b.WriteByte(' ')
	}
	t.b.WriteString(run)
}

func (t *textBuffer) Len() int       { return t.b.Len() }
func (t *textBuffer) String() string { return t.b.String() }

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Page is the live record of one physical page.
type Page struct {
	ID          string
	Sequence    int
	HasSequence bool
	Number      string
	SectionID   string // first section overlapping the page

	fields     *fields.Map
	text       textBuffer
	hasContent bool
	stamped    map[int]bool // section numbers already stamped onto the page
}

// qualifies reports whether the page holds anything beyond the volume constants.
func (p *Page) qualifies() bool {
	if p.hasContent || p.text.Len() > 0 {
		return true
	}
	for _, k := range p.fields.Keys() {
		if k != fields.Type && !fields.VolumeConstant(k) {
			return true
		}
	}
	return false
}

// Section is the live aggregate of one recognized division.
type Section struct {
	Type   string
	Number int
	ID     string

	fields     *fields.Map
	pages      []string
	text       textBuffer
	hasContent bool

	heading  latch
	date     latch
	firstSeq latch
}

func (s *Section) qualifies() bool {
	return s.hasContent || len(s.pages) > 0 || s.text.Len() > 0
}

func (s *Section) hasPage(id string) bool {
	for _, p := range s.pages {
		if p == id {
			return true
		}
	}
	return false
}

type divFrame struct {
	section bool
}

// speechTurn is an open <sp>.
type speechTurn struct {
	level     int // element stack depth of the <sp>
	speaker   string
	inSpeaker bool
	raw       strings.Builder
}

// paragraph is an open outermost <p> or <head>.
type paragraph struct {
	kind             string
	level            int
	speaker          string
	titleWindow      bool
	headingCandidate bool
	// buf holds the text for the live page; full holds the whole paragraph.
	buf  strings.Builder
	full strings.Builder
	held []heldPart
}

// heldPart is paragraph text from before a page break, kept with its page until
// the paragraph shows whether it carries the section title.
type heldPart struct {
	page *Page
	text string
}

// dateFrame is an open outermost <date>.
type dateFrame struct {
	level   int
	capture bool
	value   string
	prefix  string
	buf     strings.Builder
}

// numbering carries the advisory page numbering checks across page breaks.
type numbering struct {
	printedStarted bool
	lastPrinted    int
	hasSuffix      bool
	lastSuffix     int
	hasSequence    bool
	lastSequence   int
}

// tracker is the engine's hierarchical document state. The engine owns it
// exclusively; nothing else holds a reference to its page or section.
type tracker struct {
	state   State
	stack   []string
	divs    []divFrame
	page    *Page
	section *Section
	speech  *speechTurn
	para    *paragraph
	date    *dateFrame
	num     numbering

	sectionCount int
	pageBreaks   int
	lastPageID   string
}

func (t *tracker) parent() string {
	if len(t.stack) < 2 {
		return ""
	}
	return t.stack[len(t.stack)-2]
}

func (t *tracker) top() string {
	if len(t.stack) == 0 {
		return ""
	}
	return t.stack[len(t.stack)-1]
}

func (t *tracker) pageID() string {
	if t.page != nil {
		return t.page.ID
	}
	if t.lastPageID != "" {
		return t.lastPageID
	}
	return "no page yet"
}
