package testsupport

import (
	"testing"

	"tailor/internal/config"
	"tailor/internal/pipeline"
)

// Pipeline builds the default pipeline for cfg or fails the test.
func Pipeline(t testing.TB, cfg config.Pipeline) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Default(cfg)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return p
}
