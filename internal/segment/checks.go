package segment

import (
	"regexp"
	"strconv"
)

var idSuffix = regexp.MustCompile(`(\d+)$`)

// checkPrintedNumber warns on non-numeric, missing or non-increasing printed page
// numbers. Missing numbers only count once numbering has begun.
func (e *Engine) checkPrintedNumber(n string) {
	if n == "" {
		if e.num.printedStarted {
			e.warn("page break without printed page number")
		}
		return
	}
	v, err := strconv.Atoi(n)
	if err != nil {
		e.warn("non-numeric printed page number", "n", n)
		return
	}
	if e.num.printedStarted && v <= e.num.lastPrinted {
		e.warn("printed page number not increasing", "n", v, "previous", e.num.lastPrinted)
	}
	e.num.printedStarted = true
	e.num.lastPrinted = v
}

// checkIDSuffix warns when the numeric suffix of a page id regresses.
func (e *Engine) checkIDSuffix(id string) {
	m := idSuffix.FindStringSubmatch(id)
	if m == nil {
		return
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	if e.num.hasSuffix && v <= e.num.lastSuffix {
		e.warn("page id suffix not increasing", "suffix", v, "previous", e.num.lastSuffix)
	}
	e.num.hasSuffix = true
	e.num.lastSuffix = v
}

func (e *Engine) checkSequence(seq int) {
	if e.num.hasSequence && seq <= e.num.lastSequence {
		e.warn("page sequence not increasing", "sequence", seq, "previous", e.num.lastSequence)
	}
	e.num.hasSequence = true
	e.num.lastSequence = seq
}
