package backup

// Progress receives whole percentages at 5% steps, ending with 100.
type Progress func(pct int)

type tracker struct {
	total  int
	done   int
	last   int
	report Progress
}

func newTracker(total int, report Progress) *tracker {
	return &tracker{total: total, last: -1, report: report}
}

func (t *tracker) step() {
	t.done++
	if t.total == 0 {
		return
	}
	pct := t.done * 100 / t.total
	if pct%5 == 0 && pct != t.last {
		t.emit(pct)
	}
}

func (t *tracker) finish() {
	if t.last != 100 {
		t.emit(100)
	}
}

func (t *tracker) emit(pct int) {
	t.last = pct
	if t.report != nil {
		t.report(pct)
	}
}
