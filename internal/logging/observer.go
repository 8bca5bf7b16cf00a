package logging

import (
	"log/slog"

	"shiftstore/internal/shiftstore"
)

// Observer traces collector progress at debug level.
type Observer struct {
	log *slog.Logger
}

// NewObserver returns a shiftstore.Observer writing to logger.
func NewObserver(logger *slog.Logger) *Observer {
	return &Observer{log: logger}
}

func (o *Observer) AnchorExamined(anchor shiftstore.Source, band []shiftstore.Source) {
	o.log.Debug("examining anchor",
		"id", anchor.ID,
		"x", anchor.X,
		"y", anchor.Y,
		"mag", anchor.Mag,
		"candidates", len(band),
	)
}

func (o *Observer) SequenceAccepted(seq shiftstore.Sequence) {
	o.log.Debug("sequence accepted",
		"anchor", seq.Anchor.ID,
		"anchor_slot", seq.AnchorSlot,
		"members", seq.IDs(),
		"placeholders", seq.Placeholders(),
	)
}

func (o *Observer) SequenceRejected(anchor shiftstore.Source, err error) {
	o.log.Debug("sequence rejected",
		"anchor", anchor.ID,
		"reason", err.Error(),
	)
}
