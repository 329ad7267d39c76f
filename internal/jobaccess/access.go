// Package jobaccess gives the CLI one read/advance interface over either the
// running daemon (IPC) or the job store directly.
package jobaccess

import (
	"context"
	"fmt"

	"tailor/internal/api"
	"tailor/internal/ipc"
	"tailor/internal/jobstore"
	"tailor/internal/services"
	"tailor/internal/workflow"
)

// Access provides job reads and detector runs regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Describe(ctx context.Context, id string, withEvents bool) (*api.Job, []api.Event, error)
	Advance(ctx context.Context, id string) (api.Result, error)
	// Trigger asks a running daemon to check id soon. It is a no-op without one.
	Trigger(ctx context.Context, id string) error
	// Daemon reports whether the access is backed by a running daemon.
	Daemon() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. Advance runs
// the detector in-process under the shared per-job locks.
func NewStoreAccess(store *jobstore.Store, detector *workflow.Detector) Access {
	return &storeAccess{store: store, detector: detector}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.Workflow.JobStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]api.Job, error) {
	resp, err := a.client.JobList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *ipcAccess) Describe(_ context.Context, id string, withEvents bool) (*api.Job, []api.Event, error) {
	resp, err := a.client.JobShow(id, withEvents)
	if err != nil {
		return nil, nil, err
	}
	return &resp.Job, resp.Events, nil
}

func (a *ipcAccess) Advance(_ context.Context, id string) (api.Result, error) {
	resp, err := a.client.Advance(id)
	if err != nil {
		return api.Result{}, err
	}
	return resp.Result, nil
}

func (a *ipcAccess) Trigger(_ context.Context, id string) error {
	_, err := a.client.Trigger(id)
	return err
}

func (a *ipcAccess) Daemon() bool { return true }

type storeAccess struct {
	store    *jobstore.Store
	detector *workflow.Detector
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for k, v := range stats {
		out[string(k)] = v
	}
	return out, nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	filters, err := ipc.ParseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	jobs, err := a.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs, a.detector.Pipeline()), nil
}

func (a *storeAccess) Describe(ctx context.Context, id string, withEvents bool) (*api.Job, []api.Event, error) {
	job, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "", "get job", fmt.Sprintf("job %s not found", id), nil)
	}
	dto := api.FromJob(job, a.detector.Pipeline())
	if !withEvents {
		return &dto, nil, nil
	}
	events, err := a.store.Events(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &dto, api.FromEvents(events), nil
}

func (a *storeAccess) Advance(ctx context.Context, id string) (api.Result, error) {
	result, err := a.detector.CheckAndAdvance(ctx, id)
	if err != nil {
		return api.Result{}, err
	}
	return api.FromResult(result), nil
}

func (a *storeAccess) Trigger(context.Context, string) error { return nil }

func (a *storeAccess) Daemon() bool { return false }
