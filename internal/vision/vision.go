// Package vision is the boundary to the OMR image pipeline. The real
// pipeline (rectification, bubble detection) runs elsewhere; this package
// defines the contract it must satisfy and ships a stub that fabricates
// detections so the rest of the system can be exercised.
package vision

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/scanscore/omr-backend/internal/omr"
)

// Pipeline turns a sheet image into per-question detections. The returned
// sheet always has exactly totalQuestions answers, each in
// {ambiguous, blank} or 1..numOptions, with confidence values in [0,1].
type Pipeline interface {
	Detect(ctx context.Context, image io.Reader, totalQuestions, numOptions int) (omr.DetectedSheet, error)
}

// StubPipeline fabricates detections instead of reading pixels. Not a
// detector: it exists so upload/score/aggregate can run end to end before
// the real pipeline is wired in. Deterministic for a given seed.
type StubPipeline struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewStubPipeline(seed int64) *StubPipeline {
	return &StubPipeline{rng: rand.New(rand.NewSource(seed))}
}

func (p *StubPipeline) Detect(_ context.Context, image io.Reader, totalQuestions, numOptions int) (omr.DetectedSheet, error) {
	// Drain the image so upstream readers (multipart bodies) complete.
	if image != nil {
		_, _ = io.Copy(io.Discard, image)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	d := omr.DetectedSheet{
		Answers:    make([]int, totalQuestions),
		Confidence: make([]float64, totalQuestions),
	}
	for i := 0; i < totalQuestions; i++ {
		switch r := p.rng.Float64(); {
		case r < 0.05:
			d.Answers[i] = omr.MarkBlank
			d.Confidence[i] = 0.9
		case r < 0.10:
			d.Answers[i] = omr.MarkAmbiguous
			d.Confidence[i] = 0.2 + 0.25*p.rng.Float64()
		default:
			d.Answers[i] = 1 + p.rng.Intn(numOptions)
			d.Confidence[i] = 0.55 + 0.45*p.rng.Float64()
		}
	}
	return d, nil
}
