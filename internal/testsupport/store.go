package testsupport

import (
	"context"
	"testing"

	"tailor/internal/config"
	"tailor/internal/jobstore"
)

// SampleResume is a small resume body accepted by job validation.
const SampleResume = "Jane Doe\nSenior Go engineer. Built distributed systems with Kubernetes, Postgres and Kafka."

// SampleJobDescription is a matching job description.
const SampleJobDescription = "We are hiring a Staff Go engineer with Kubernetes, Terraform and Postgres expertise."

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SampleInput returns a valid job input.
func SampleInput() jobstore.Input {
	return jobstore.Input{
		CandidateName:  "Jane Doe",
		TargetRole:     "Staff Engineer",
		Company:        "Acme",
		ResumeText:     SampleResume,
		JobDescription: SampleJobDescription,
		Style:          "professional",
	}
}

// NewJob creates a job with the given stages for tests.
func NewJob(t testing.TB, store *jobstore.Store, id string, stages ...string) *jobstore.Job {
	t.Helper()

	if len(stages) == 0 {
		stages = []string{"enhance", "cover-letter"}
	}
	job, err := store.Create(context.Background(), jobstore.NewJob{ID: id, Input: SampleInput(), Stages: stages})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
