package shiftstore

// Observer receives progress notifications from a collector run. Observers never
// influence the outcome; they exist for visualization and diagnostics.
type Observer interface {
	AnchorExamined(anchor Source, band []Source)
	SequenceAccepted(seq Sequence)
	SequenceRejected(anchor Source, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) AnchorExamined(Source, []Source) {}
func (NopObserver) SequenceAccepted(Sequence) {}
func (NopObserver) SequenceRejected(Source, error) {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) AnchorExamined(anchor Source, band []Source) {
	for _, obs := range o {
		obs.AnchorExamined(anchor, band)
	}
}

func (o Observers) SequenceAccepted(seq Sequence) {
	for _, obs := range o {
		obs.SequenceAccepted(seq)
	}
}

func (o Observers) SequenceRejected(anchor Source, err error) {
	for _, obs := range o {
		obs.SequenceRejected(anchor, err)
	}
}
