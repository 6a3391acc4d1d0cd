package core

import "time"

// Observer receives counters from reads and renders. The metrics package
// provides a Prometheus implementation; the zero value of Pipeline and
// Renderer use a no-op.
type Observer interface {
	RowsRead(n int)
	BatchFlushed(size int)
	CellErrors(kind string, n int)
	HeadError()
	RuleRendered(kind RuleKind)
	RuleSkipped(kind RuleKind)
	ReadFinished(d time.Duration)
}

// Cell error kinds reported to Observer.CellErrors.
const (
	ErrorKindTypeMismatch = "type_mismatch"
	ErrorKindValidation   = "validation"
	ErrorKindVerify       = "verify"
)

type nopObserver struct{}

func (nopObserver) RowsRead(int)               {}
func (nopObserver) BatchFlushed(int)           {}
func (nopObserver) CellErrors(string, int)     {}
func (nopObserver) HeadError()                 {}
func (nopObserver) RuleRendered(RuleKind)      {}
func (nopObserver) RuleSkipped(RuleKind)       {}
func (nopObserver) ReadFinished(time.Duration) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
