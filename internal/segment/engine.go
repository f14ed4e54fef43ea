// Package segment turns the parse events of one TEI volume into page and section
// records in a single forward pass.
package segment

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dgallion1/apindex/internal/fields"
	"github.com/dgallion1/apindex/internal/normalize"
	"github.com/dgallion1/apindex/internal/parser"
	"github.com/dgallion1/apindex/internal/record"
	"github.com/dgallion1/apindex/internal/volume"
)

// ErrClosed is returned for events received after Close.
var ErrClosed = errors.New("segment: engine closed")

// SectionTypes are the division types that produce section records.
var SectionTypes = map[string]bool{
	"session":      true,
	"contents":     true,
	"index":        true,
	"introduction": true,
	"errata":       true,
	"other":        true,
}

// volumeUnitType marks the outer division wrapping one volume's text.
const volumeUnitType = "volume"

// wrappers must not carry text of their own.
var wrappers = map[string]bool{
	"text":  true,
	"front": true,
	"body":  true,
	"back":  true,
	"div":   true,
	"sp":    true,
}

// Config holds everything an engine needs for one document.
type Config struct {
	Volume    volume.Context
	Sequences volume.SequenceTable
	Sink      Sink
	Logger    *slog.Logger
}

// Stats summarizes one run.
type Stats struct {
	Pages          int `json:"pages"`
	Sections       int `json:"sections"`
	DiscardedPages int `json:"discarded_pages"`
	Warnings       int `json:"warnings"`
	Errors         int `json:"errors"`
}

// Engine is single-use and single-owner: feed it one document's events, then Close.
type Engine struct {
	tracker

	vol       volume.Context
	seq       volume.SequenceTable
	sink      Sink
	log       *slog.Logger
	fieldLog  *slog.Logger
	constants *fields.Map
	stats     Stats
	closed    bool
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("volume", cfg.Volume.SourceID)
	return &Engine{
		vol:       cfg.Volume,
		seq:       cfg.Sequences,
		sink:      cfg.Sink,
		log:       log,
		fieldLog:  log.With("page_id", "no page yet"),
		constants: cfg.Volume.Constants(log),
	}
}

// Run streams one document from r through a new engine.
func Run(r io.Reader, cfg Config) (Stats, error) {
	e := New(cfg)
	if err := parser.Stream(r, e); err != nil {
		return e.Stats(), err
	}
	if err := e.Close(); err != nil {
		return e.Stats(), err
	}
	return e.Stats(), nil
}

// State returns the engine's current region state.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// StartElement handles an element-start event.
func (e *Engine) StartElement(name string, attrs parser.Attrs) error {
	if e.closed {
		return ErrClosed
	}
	e.stack = append(e.stack, name)

	switch name {
	case "front":
		e.state = StateFront
	case "body":
		e.state = StateBodyOutsideSection
	case "back":
		e.state = StateBackOutsideSection
	case "div":
		e.startDiv(attrs)
	case "pb":
		return e.pageBreak(attrs)
	case "p", "head":
		e.startParagraph(name)
	case "sp":
		e.startSpeech()
	case "speaker":
		if e.speech != nil && e.speech.level == len(e.stack)-1 {
			e.speech.inSpeaker = true
		}
	case "date":
		e.startDate(attrs)
	}
	return nil
}

// EndElement handles an element-end event.
func (e *Engine) EndElement(name string) error {
	if e.closed {
		return ErrClosed
	}
	level := len(e.stack)
	defer func() {
		if len(e.stack) > 0 {
			e.stack = e.stack[:len(e.stack)-1]
		}
	}()

	switch name {
	case "front":
		e.state = StateHeader
	case "body", "back":
		if err := e.flushPage(); err != nil {
			return err
		}
		e.state = StateHeader
	case "div":
		if len(e.divs) == 0 {
			return nil
		}
		frame := e.divs[len(e.divs)-1]
		e.divs = e.divs[:len(e.divs)-1]
		if frame.section {
			return e.closeSection()
		}
	case "p", "head":
		if e.para != nil && e.para.level == level {
			return e.endParagraph()
		}
	case "sp":
		if e.speech != nil && e.speech.level == level {
			e.speech = nil
		}
	case "speaker":
		if e.speech != nil && e.speech.inSpeaker && e.speech.level == level-1 {
			e.endSpeaker()
		}
	case "date":
		if e.date != nil && e.date.level == level {
			e.endDate()
		}
	}
	return nil
}

// Text handles a character run.
func (e *Engine) Text(s string) error {
	if e.closed {
		return ErrClosed
	}
	run := collapse(s)
	if run != "" {
		if top := e.top(); wrappers[top] {
			e.warn("text directly inside wrapper element", "element", top, "text", run)
		}
	}
	if !e.state.inText() {
		return nil
	}

	// Whitespace-only runs still separate inline children in the buffers.
	if e.para != nil {
		e.para.buf.WriteString(s)
		e.para.full.WriteString(s)
	}
	if e.speech != nil && e.speech.inSpeaker {
		e.speech.raw.WriteString(s)
	}
	if e.date != nil {
		e.date.buf.WriteString(s)
	}
	if run == "" {
		return nil
	}
	if e.page != nil {
		e.page.text.add(run)
	}
	if e.section != nil {
		e.section.text.add(run)
	}
	return nil
}

// Close flushes whatever is still live. Further events fail with ErrClosed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	if e.para != nil {
		if err := e.endParagraph(); err != nil {
			return err
		}
	}
	if e.section != nil {
		e.warn("document ended inside section", "section", e.section.ID)
		if err := e.closeSection(); err != nil {
			return err
		}
	}
	err := e.flushPage()
	e.closed = true
	return err
}

func (e *Engine) startDiv(attrs parser.Attrs) {
	var frame divFrame
	typ := attrs["type"]
	switch {
	case typ == volumeUnitType:
		e.num.printedStarted = false
		e.num.hasSuffix = false
	case SectionTypes[typ]:
		if !e.state.inText() {
			break
		}
		if e.section != nil {
			e.warn("nested section ignored", "type", typ, "open_section", e.section.ID)
			break
		}
		e.openSection(typ)
		frame.section = true
	}
	e.divs = append(e.divs, frame)
}

func (e *Engine) openSection(typ string) {
	e.sectionCount++
	s := &Section{
		Type:   typ,
		Number: e.sectionCount,
		ID:     fmt.Sprintf("%s_section_%d", e.vol.SourceID, e.sectionCount),
		fields: e.constants.Clone(),
	}
	e.assign(s.fields, fields.Type, string(record.KindSection))
	e.assign(s.fields, fields.DocType, typ)
	s.heading.arm()
	s.date.arm()
	s.firstSeq.arm()

	e.section = s
	e.state = e.state.withSection(true)
	if e.page != nil {
		e.joinSection(e.page)
	}
}

// joinSection records p as a member of the live section.
func (e *Engine) joinSection(p *Page) {
	s := e.section
	if s.hasPage(p.ID) {
		return
	}
	s.pages = append(s.pages, p.ID)
	e.assign(s.fields, fields.PageIDs, p.ID)
	if p.SectionID == "" {
		p.SectionID = s.ID
	}
	e.assign(p.fields, fields.SectionIDs, s.ID)
	if p.HasSequence && s.firstSeq.fire() {
		e.assign(s.fields, fields.FirstSequence, p.Sequence)
	}
}

func (e *Engine) closeSection() error {
	s := e.section
	if s == nil {
		return nil
	}
	if e.page != nil {
		e.stampPage(e.page, s)
	}
	e.section = nil
	e.state = e.state.withSection(false)

	if !s.qualifies() {
		e.log.Debug("empty section dropped", "section", s.ID, "page_id", e.pageID())
		return nil
	}
	if s.text.Len() > 0 {
		e.assign(s.fields, fields.Text, s.text.String())
	}
	if err := e.emit(&record.Record{ID: s.ID, Kind: record.KindSection, Fields: s.fields}); err != nil {
		return err
	}
	e.stats.Sections++
	return nil
}

// stampPage copies the section-level fields of s onto p, once per section.
func (e *Engine) stampPage(p *Page, s *Section) {
	if p.stamped[s.Number] {
		return
	}
	if p.stamped == nil {
		p.stamped = make(map[int]bool)
	}
	p.stamped[s.Number] = true

	e.assign(p.fields, fields.PageDocType, s.Type)
	for _, kv := range [][2]string{
		{fields.SessionDate, fields.PageSessionDate},
		{fields.DateValue, fields.PageDateValue},
		{fields.Title, fields.PageTitle},
		{fields.Heading, fields.PageHeading},
	} {
		if v, ok := s.fields.Get(kv[0]); ok {
			e.assign(p.fields, kv[1], v)
		}
	}
}

func (e *Engine) pageBreak(attrs parser.Attrs) error {
	// A paragraph running across the break contributes its first part to the
	// outgoing page. If it may still capture the section date, the part and its
	// page wait for the paragraph to end, and so do later pages to keep order.
	if p := e.para; p != nil {
		if len(p.held) > 0 || e.mayHoldTitle() {
			p.held = append(p.held, heldPart{page: e.page, text: p.buf.String()})
			e.page = nil
		} else {
			e.contribute(p, e.page, p.buf.String())
		}
		p.buf.Reset()
	}
	if err := e.flushPage(); err != nil {
		return err
	}

	e.pageBreaks++
	id := strings.TrimSpace(attrs["id"])
	if id == "" {
		id = fmt.Sprintf("%s_pb_%d", e.vol.SourceID, e.pageBreaks)
		e.warn("page break without id", "assigned_id", id)
	}

	p := &Page{ID: id, fields: e.constants.Clone()}
	e.page = p
	e.lastPageID = id
	e.fieldLog = e.log.With("page_id", id)
	e.assign(p.fields, fields.Type, string(record.KindPage))

	if lead, _, _ := strings.Cut(id, "_"); lead != e.vol.SourceID {
		e.fail("page id does not match volume identifier", "druid", e.vol.SourceID)
	}
	if seq, ok := e.seq.Lookup(id); ok {
		p.Sequence = seq
		p.HasSequence = true
		e.assign(p.fields, fields.PageSequence, seq)
		e.checkSequence(seq)
	}
	n := strings.TrimSpace(attrs["n"])
	e.checkPrintedNumber(n)
	if n != "" {
		p.Number = n
		e.assign(p.fields, fields.PageNumber, n)
	}
	e.checkIDSuffix(id)

	if e.section != nil {
		e.joinSection(p)
	}
	return nil
}

func (e *Engine) flushPage() error {
	p := e.page
	if p == nil {
		return nil
	}
	if e.section != nil {
		e.stampPage(p, e.section)
	}
	e.page = nil
	return e.emitPage(p)
}

func (e *Engine) emitPage(p *Page) error {
	if !p.qualifies() {
		e.stats.DiscardedPages++
		e.log.Debug("page without content discarded", "page_id", p.ID)
		return nil
	}
	if p.text.Len() > 0 {
		e.assign(p.fields, fields.Text, p.text.String())
	}
	if err := e.emit(&record.Record{ID: p.ID, Kind: record.KindPage, Fields: p.fields}); err != nil {
		return err
	}
	e.stats.Pages++
	return nil
}

func (e *Engine) emit(rec *record.Record) error {
	if err := e.sink.Add(rec); err != nil {
		return fmt.Errorf("add record %s: %w", rec.ID, err)
	}
	return nil
}

func (e *Engine) startParagraph(kind string) {
	if e.para != nil {
		return
	}
	p := &paragraph{kind: kind, level: len(e.stack)}
	if e.speech != nil && e.parent() == "sp" {
		p.speaker = e.speech.speaker
	}
	if kind == "head" && e.section != nil && e.state.inText() && e.section.heading.fire() {
		p.headingCandidate = true
	}
	e.para = p
}

func (e *Engine) endParagraph() error {
	p := e.para
	e.para = nil
	if !e.state.inText() {
		return nil
	}
	if e.page != nil {
		e.page.hasContent = true
	}
	if p.headingCandidate && !p.titleWindow && e.section != nil {
		if h := normalize.Heading(p.full.String()); h != "" {
			e.assign(e.section.fields, fields.Heading, h)
			e.section.hasContent = true
		}
	}
	for _, h := range p.held {
		e.contribute(p, h.page, h.text)
		if h.page == nil {
			continue
		}
		h.page.hasContent = true
		if e.section != nil {
			e.stampPage(h.page, e.section)
		}
		if err := e.emitPage(h.page); err != nil {
			return err
		}
	}
	e.contribute(p, e.page, p.buf.String())
	return nil
}

// mayHoldTitle reports whether the open paragraph could still capture the section
// date and so become the title window.
func (e *Engine) mayHoldTitle() bool {
	return e.para != nil && !e.para.titleWindow && e.section != nil &&
		e.section.date.armed && e.speech == nil && e.state.inText()
}

// contribute files a paragraph's text as spoken or unspoken text on page and the
// live section.
func (e *Engine) contribute(p *paragraph, page *Page, raw string) {
	if !e.state.inText() || p.titleWindow {
		return
	}
	text := collapse(raw)
	if text == "" {
		return
	}

	key, entry := fields.UnspokenText, text
	if p.speaker != "" {
		key, entry = fields.SpokenText, p.speaker+":"+text
	}
	if page != nil {
		page.hasContent = true
		e.assign(page.fields, key, entry)
	}
	if e.section != nil {
		if page != nil {
			entry = page.ID + ":" + entry
		}
		e.assign(e.section.fields, key, entry)
		e.section.hasContent = true
	}
}

func (e *Engine) startSpeech() {
	if e.speech != nil {
		return
	}
	e.speech = &speechTurn{level: len(e.stack)}
	if e.section != nil {
		e.section.date.disarm()
	}
}

func (e *Engine) endSpeaker() {
	sp := e.speech
	sp.inSpeaker = false
	name := normalize.Speaker(sp.raw.String())
	sp.raw.Reset()
	if name == "" {
		return
	}
	sp.speaker = name
	if !e.state.inText() {
		return
	}
	if e.page != nil && !e.page.fields.Contains(fields.Speaker, name) {
		e.assign(e.page.fields, fields.Speaker, name)
	}
	if e.section != nil && !e.section.fields.Contains(fields.Speaker, name) {
		e.assign(e.section.fields, fields.Speaker, name)
		e.section.hasContent = true
	}
}

func (e *Engine) startDate(attrs parser.Attrs) {
	if e.date != nil {
		return
	}
	d := &dateFrame{level: len(e.stack)}
	e.date = d

	s := e.section
	if s == nil || !e.state.inText() || e.speech != nil {
		return
	}
	value := attrs["value"]
	if value == "" {
		value = attrs["when"]
	}
	if !s.date.fire() {
		e.warn("later date element ignored for section date", "section", s.ID, "value", value)
		return
	}
	d.capture = true
	d.value = value
	if e.para != nil {
		d.prefix = e.para.full.String()
		e.para.titleWindow = true
	}
	s.heading.disarm()
}

func (e *Engine) endDate() {
	d := e.date
	e.date = nil
	s := e.section
	if !d.capture || s == nil {
		return
	}
	s.hasContent = true

	if d.value == "" {
		e.warn("section date element without value", "section", s.ID)
	} else if dt, err := normalize.ParseDate(d.value); err != nil {
		e.warn("section date dropped", "section", s.ID, "error", err)
	} else {
		e.assign(s.fields, fields.SessionDate, dt.IndexValue())
		e.assign(s.fields, fields.DateValue, d.value)
	}

	if title := normalize.Title(d.prefix + d.buf.String()); title != "" {
		e.assign(s.fields, fields.Title, title)
	}
}

func (e *Engine) assign(m *fields.Map, key string, value any) {
	if !fields.Assign(e.fieldLog, m, key, value) {
		e.stats.Warnings++
	}
}

func (e *Engine) warn(msg string, args ...any) {
	e.stats.Warnings++
	e.log.Warn(msg, append([]any{"page_id", e.pageID()}, args...)...)
}

func (e *Engine) fail(msg string, args ...any) {
	e.stats.Errors++
	e.log.Error(msg, append([]any{"page_id", e.pageID()}, args...)...)
}
