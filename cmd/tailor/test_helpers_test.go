package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tailor/internal/config"
	"tailor/internal/daemon"
	"tailor/internal/ipc"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/testsupport"
	"tailor/internal/workflow"
)

const enhancedResume = "# Jane Doe\n\nStaff Go engineer. Kubernetes operators, Terraform and Postgres at scale.\n"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NO_COLOR", "1")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
	}
}

// startDaemon serves IPC on the configured socket without starting the poller.
func (env *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	logger := logging.NewNop()
	detector := workflow.NewDetector(env.cfg, store, testsupport.Pipeline(t, env.cfg.Pipeline), logger)
	mgr := workflow.NewManager(env.cfg, store, detector, logger, nil)
	d, err := daemon.New(env.cfg, store, logger, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})
	return d
}

func (env *cliTestEnv) writeInputs(t *testing.T) (resumePath, jdPath string) {
	t.Helper()
	in := testsupport.SampleInput()
	resumePath = filepath.Join(env.baseDir, "resume.md")
	jdPath = filepath.Join(env.baseDir, "jd.md")
	testsupport.WriteFile(t, resumePath, in.ResumeText)
	testsupport.WriteFile(t, jdPath, in.JobDescription)
	return resumePath, jdPath
}

func (env *cliTestEnv) createJob(t *testing.T, id string) {
	t.Helper()
	resumePath, jdPath := env.writeInputs(t)
	out, _, err := runCLI(t, env, "job", "create", "--id", id, "--resume", resumePath, "--job-description", jdPath,
		"--candidate", "Jane Doe", "--role", "Staff Engineer", "--company", "Acme")
	if err != nil {
		t.Fatalf("job create: %v", err)
	}
	requireContains(t, out, "Created job "+id)
}

func (env *cliTestEnv) getJob(t *testing.T, id string) *jobstore.Job {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nworkspace_root = %q\nstate_dir = %q\nlog_dir = %q\n\n"+
			"[workflow]\npoll_interval_seconds = 3600\nlock_timeout_seconds = 2\nwatch_filesystem = false\n",
		cfg.Paths.WorkspaceRoot,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
