// Package compare classifies sampled frame fingerprints against the Slate
// Library. The Comparator is stateless and safe to call from any stage.
package compare

import "github.com/jxs/hawkeye/internal/slate"

// Classification is the tagged result of comparing a frame to the library.
type Classification struct {
	// IsSlate reports whether the frame matched a known slate.
	IsSlate bool
	// SlateID is set only when IsSlate is true.
	SlateID string
	// Score is the best match score observed, regardless of outcome; used
	// to populate the slate_match_score gauge.
	Score float64
}

// Comparator decides Content vs. Slate(id) for a sampled frame fingerprint.
type Comparator struct {
	library   *slate.Library
	threshold float64
}

// New builds a Comparator over library using the configured match threshold.
func New(library *slate.Library, threshold float64) *Comparator {
	return &Comparator{library: library, threshold: threshold}
}

// Classify returns Content or Slate(id) for fp, per §4.4. Score is always
// the best similarity observed against any slate, whether or not it cleared
// the match threshold, so callers can report it on the slate_match_score
// gauge regardless of classification outcome.
func (c *Comparator) Classify(fp slate.Fingerprint) Classification {
	_, best := c.library.BestScore(fp)
	match, ok := c.library.FindBestMatch(fp, c.threshold)
	if !ok {
		return Classification{IsSlate: false, Score: best}
	}
	return Classification{IsSlate: true, SlateID: match.SlateID, Score: best}
}
