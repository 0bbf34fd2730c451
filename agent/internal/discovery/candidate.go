package discovery

// Outcome is the result of the last connection attempt through a candidate.
type Outcome int

const (
	OutcomeUnset Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unset"
	}
}

// Candidate is one endpoint the agent may connect to.
//
// Attempts lives for the whole process and is reset only when a connect
// through this candidate succeeds.
type Candidate struct {
	URL         string
	Attempts    int
	LastOutcome Outcome
}

// Exhausted reports whether the candidate has used up its attempts.
func (c *Candidate) Exhausted(maxAttempts int) bool {
	return c.Attempts > maxAttempts
}

// RecordAttempt counts an attempt about to be made.
func (c *Candidate) RecordAttempt() {
	c.Attempts++
}

// RecordSuccess resets the attempt counter.
func (c *Candidate) RecordSuccess() {
	c.Attempts = 0
	c.LastOutcome = OutcomeSuccess
}

// RecordFailure marks the last attempt as failed.
func (c *Candidate) RecordFailure() {
	c.LastOutcome = OutcomeFailure
}

// CandidateList is an ordered, duplicate-free list of candidates.
// Order is priority: earlier entries are tried first.
type CandidateList struct {
	items []*Candidate
	seen  map[string]struct{}
}

// NewCandidateList creates a list from urls, dropping duplicates.
func NewCandidateList(urls ...string) *CandidateList {
	l := &CandidateList{seen: make(map[string]struct{})}
	for _, u := range urls {
		l.Add(u)
	}
	return l
}

// Add appends url unless it is already present. Returns true if added.
func (l *CandidateList) Add(url string) bool {
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[url]; ok {
		return false
	}
	l.seen[url] = struct{}{}
	l.items = append(l.items, &Candidate{URL: url})
	return true
}

// Contains reports whether url is in the list.
func (l *CandidateList) Contains(url string) bool {
	_, ok := l.seen[url]
	return ok
}

// Len returns the number of candidates. Safe on a nil list.
func (l *CandidateList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Items returns the candidates in priority order. The pointers are live:
// attempt bookkeeping done through them is kept by the list.
func (l *CandidateList) Items() []*Candidate {
	if l == nil {
		return nil
	}
	return l.items
}

// URLs returns the candidate URLs in priority order.
func (l *CandidateList) URLs() []string {
	urls := make([]string, 0, l.Len())
	for _, c := range l.Items() {
		urls = append(urls, c.URL)
	}
	return urls
}
