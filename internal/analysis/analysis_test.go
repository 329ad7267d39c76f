package analysis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailor/internal/analysis"
	"tailor/internal/services"
)

const jobDescription = "Staff Go engineer. Kubernetes, Terraform, Postgres. Kubernetes operators in Go."

func TestComputeScoresCoverage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report, err := analysis.Compute(
		"Go engineer running Postgres on Kubernetes.",
		"Staff Go engineer: Kubernetes operators, Terraform modules, Postgres tuning.",
		jobDescription,
		now,
	)
	require.NoError(t, err)

	assert.Equal(t, now, report.ComputedAt)
	assert.Contains(t, report.Resume.Matched, "kubernetes")
	assert.Contains(t, report.Resume.Missing, "terraform")
	require.NotNil(t, report.Enhanced)
	assert.NotContains(t, report.Enhanced.Missing, "terraform")
	assert.Greater(t, report.Enhanced.Value, report.Resume.Value)
	assert.Positive(t, report.Delta())
	assert.LessOrEqual(t, report.Enhanced.Value, 100)
}

func TestComputeWithoutEnhancedResume(t *testing.T) {
	report, err := analysis.Compute("Kubernetes", "", jobDescription, time.Now())
	require.NoError(t, err)
	assert.Nil(t, report.Enhanced)
	assert.Zero(t, report.Delta())
}

func TestComputeRejectsEmptyJobDescription(t *testing.T) {
	_, err := analysis.Compute("resume", "", "   ", time.Now())
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestEncodeDecode(t *testing.T) {
	report, err := analysis.Compute("Go Kubernetes", "", jobDescription, time.Now())
	require.NoError(t, err)
	payload, err := analysis.Encode(report)
	require.NoError(t, err)

	decoded, err := analysis.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, report.Resume.Value, decoded.Resume.Value)

	_, err = analysis.Decode("{broken")
	require.ErrorIs(t, err, services.ErrValidation)
}
