package anchor

// OverlapAcceptor resolves anchor conflicts within one batch. Candidates must
// be offered in document order; a candidate is accepted only if its range
// intersects no previously accepted range. Rejected candidates are dropped,
// not retried.
type OverlapAcceptor struct {
	accepted []Range
}

// NewOverlapAcceptor creates an empty acceptor for one batch
func NewOverlapAcceptor() *OverlapAcceptor {
	return &OverlapAcceptor{}
}

// Accept reports whether the candidate range is conflict-free and, if so,
// records it.
func (a *OverlapAcceptor) Accept(r Range) bool {
	for _, prev := range a.accepted {
		if r.Intersects(prev) {
			return false
		}
	}
	a.accepted = append(a.accepted, r)
	return true
}

// Accepted returns the ranges accepted so far, in acceptance order
func (a *OverlapAcceptor) Accepted() []Range {
	return a.accepted
}
