package pipeline

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"shiftstore/internal/config"
	"shiftstore/internal/profile"
)

// Request is a focus run as submitted over HTTP, gRPC or the watcher. Unset
// fields fall back to the profile, then to the config.
type Request struct {
	Catalog          string    `json:"catalog"`
	Profile          string    `json:"profile,omitempty"`
	Shifts           []float64 `json:"shifts,omitempty"`
	Horizontal       *bool     `json:"horizontal,omitempty"`
	PartialLen       *int      `json:"partial_len,omitempty"`
	Sequences        *int      `json:"sequences,omitempty"`
	MinContributors  *int      `json:"min_contributors,omitempty"`
	FocuserPositions []float64 `json:"focuser_positions,omitempty"`
	Strict           bool      `json:"strict,omitempty"`
	Output           string    `json:"output,omitempty"`
	Image            string    `json:"image,omitempty"`
}

// Job resolves the request against cfg into a focus job with a fresh id.
func (req Request) Job(cfg *config.Config) (Job, error) {
	if req.Catalog == "" {
		return Job{}, errors.New("catalog is required")
	}
	focus := cfg.Focus
	if req.Profile != "" {
		p, err := profile.Resolve(cfg.Paths.ProfileDir, req.Profile)
		if err != nil {
			return Job{}, err
		}
		p.Apply(&focus)
	}
	if len(req.Shifts) > 0 {
		focus.Shifts = append([]float64(nil), req.Shifts...)
		if len(focus.FocuserPositions) != len(focus.Shifts)+1 {
			focus.FocuserPositions = nil
		}
	}
	if req.Horizontal != nil {
		focus.Horizontal = *req.Horizontal
	}
	if req.PartialLen != nil {
		focus.PartialLen = *req.PartialLen
	}
	if req.Sequences != nil {
		focus.Sequences = *req.Sequences
	}
	if req.MinContributors != nil {
		focus.MinContributors = *req.MinContributors
	}
	if len(req.FocuserPositions) > 0 {
		focus.FocuserPositions = append([]float64(nil), req.FocuserPositions...)
	}
	focus.Strict = focus.Strict || req.Strict
	if err := focus.Validate(); err != nil {
		return Job{}, fmt.Errorf("invalid focus settings: %w", err)
	}

	job := Job{
		ID:        NewID("focus"),
		Type:      JobFocus,
		InputPath: req.Catalog,
		Output:    req.Output,
		Focus:     focus,
	}
	if req.Image != "" {
		job.Options = map[string]any{"image": req.Image}
	}
	return job, nil
}

// NewID returns a run id of the form prefix-YYYYMMDDTHHMMSS-NNNN.
func NewID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%04d", prefix, ts, rand.Intn(10000))
}
