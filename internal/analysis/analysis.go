// Package analysis scores how well a resume covers a job description.
package analysis

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"tailor/internal/services"
	"tailor/internal/textutil"
)

// TermLimit bounds how many job description terms are checked for coverage.
const TermLimit = 25

const (
	coverageWeight   = 0.7
	similarityWeight = 0.3
)

// Score is the match of one resume text against the job description.
type Score struct {
	Value      int      `json:"value"`
	Coverage   float64  `json:"coverage"`
	Similarity float64  `json:"similarity"`
	Matched    []string `json:"matched_terms,omitempty"`
	Missing    []string `json:"missing_terms,omitempty"`
}

// Report is the cached analysis payload stored on a job.
type Report struct {
	Resume     Score     `json:"resume"`
	Enhanced   *Score    `json:"enhanced,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// Delta returns the score change the enhanced resume achieved, or 0 when no
// enhanced resume was scored.
func (r Report) Delta() int {
	if r.Enhanced == nil {
		return 0
	}
	return r.Enhanced.Value - r.Resume.Value
}

// Compute scores resume and, when non-empty, the enhanced resume against the
// job description.
func Compute(resume, enhanced, jobDescription string, now time.Time) (Report, error) {
	target := textutil.NewFingerprint(jobDescription)
	if target == nil {
		return Report{}, services.Wrap(services.ErrValidation, "", "analyze", "job description has no scorable terms", nil)
	}
	report := Report{Resume: score(resume, target), ComputedAt: now.UTC()}
	if strings.TrimSpace(enhanced) != "" {
		s := score(enhanced, target)
		report.Enhanced = &s
	}
	return report, nil
}

func score(text string, target *textutil.Fingerprint) Score {
	source := textutil.NewFingerprint(text)
	coverage, matched, missing := textutil.Coverage(source, target, TermLimit)
	similarity := textutil.CosineSimilarity(source, target)
	value := math.Round(100 * (coverageWeight*coverage + similarityWeight*similarity))
	return Score{
		Value:      int(value),
		Coverage:   round3(coverage),
		Similarity: round3(similarity),
		Matched:    matched,
		Missing:    missing,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Encode serializes a report for the job store.
func Encode(report Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses a cached report.
func Decode(payload string) (Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return Report{}, services.Wrap(services.ErrValidation, "", "decode analysis", "cached analysis is corrupt", err)
	}
	return report, nil
}
