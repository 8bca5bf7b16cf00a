package shiftstore

// Collector gathers sequences from one catalog. Its consumed set is private to a
// single Run; construct a new Collector for every catalog.
type Collector struct {
	params   Params
	target   int
	observer Observer
	consumed map[int]struct{}
}

// Result is the outcome of one collector run.
type Result struct {
	Sequences []Sequence
	// Examined counts anchors RowSearch was run for.
	Examined int
	Target   int
}

// Count is the number of accepted sequences.
func (r Result) Count() int { return len(r.Sequences) }

// Shortfall reports a *ShortfallError when fewer sequences than the target
// were found, and nil otherwise.
func (r Result) Shortfall() error {
	if r.Target > 0 && len(r.Sequences) < r.Target {
		return &ShortfallError{Found: len(r.Sequences), Target: r.Target}
	}
	return nil
}

// NewCollector returns a collector that stops after target sequences. A target
// of zero or less scans the whole catalog. obs may be nil.
func NewCollector(p Params, target int, obs Observer) *Collector {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Collector{
		params:   p.WithDefaults(),
		target:   target,
		observer: obs,
		consumed: make(map[int]struct{}),
	}
}

// Run walks catalog in the given order, which callers sort brightest first, and
// returns every accepted sequence. A shortfall is reported through
// Result.Shortfall, never as a failure.
func (c *Collector) Run(catalog []Source) Result {
	c.consumed = make(map[int]struct{})
	res := Result{Target: c.target}
	skip := func(s Source) bool { return c.Consumed(s.ID) }

	for _, anchor := range catalog {
		if c.target > 0 && len(res.Sequences) >= c.target {
			break
		}
		if c.Consumed(anchor.ID) {
			continue
		}

		band := CandidateBand(catalog, anchor, c.params.WindowTolerance, c.params.Axes, skip)
		c.observer.AnchorExamined(anchor, band)
		res.Examined++

		seq, err := FindRow(anchor, band, c.params)
		if err != nil {
			c.observer.SequenceRejected(anchor, err)
			continue
		}

		res.Sequences = append(res.Sequences, seq)
		for _, id := range seq.IDs() {
			c.consumed[id] = struct{}{}
		}
		c.observer.SequenceAccepted(seq)
	}
	return res
}

// Consumed reports whether id belongs to a sequence accepted in the current run.
func (c *Collector) Consumed(id int) bool {
	_, ok := c.consumed[id]
	return ok
}
