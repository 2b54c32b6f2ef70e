package main

import (
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/connsync/pkg/records"
	"github.com/Sternrassler/connsync/pkg/syncer"
)

var (
	// ErrScopeActive is returned when a run for the same scope is in flight.
	ErrScopeActive = errors.New("a run for this scope is already active")

	// ErrDuplicateRunID is returned when a run id has been used before.
	ErrDuplicateRunID = errors.New("run id already exists")

	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// defaultKeepFinished bounds the finished results kept for lookup.
const defaultKeepFinished = 1000

// registry tracks runs started by the server. At most one run per scope is
// active at a time. The most recent finished results are kept for lookup;
// older ones are evicted first-in first-out and their ids become unknown.
type registry struct {
	mu       sync.Mutex
	runs     map[string]syncer.Result
	active   map[records.Scope]string
	finished []string
	keep     int
	now      func() time.Time
}

func newRegistry() *registry {
	return &registry{
		runs:   make(map[string]syncer.Result),
		active: make(map[records.Scope]string),
		keep:   defaultKeepFinished,
		now:    time.Now,
	}
}

func scopeOf(req syncer.RunRequest) records.Scope {
	return records.Scope{Tenant: req.Tenant, Subject: req.Subject, Platform: req.Platform}
}

// start reserves the scope of req and records a running result.
func (r *registry) start(req syncer.RunRequest) (syncer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[req.RunID]; ok {
		return syncer.Result{}, ErrDuplicateRunID
	}
	scope := scopeOf(req)
	if _, ok := r.active[scope]; ok {
		return syncer.Result{}, ErrScopeActive
	}

	res := syncer.Result{
		RunID:     req.RunID,
		Status:    syncer.StatusRunning,
		State:     syncer.StateAwaitingCredentials,
		StartedAt: r.now(),
	}
	r.runs[req.RunID] = res
	r.active[scope] = req.RunID
	return res, nil
}

// update records an intermediate result of an active run.
func (r *registry) update(req syncer.RunRequest, res syncer.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[scopeOf(req)] != req.RunID {
		return
	}
	res.RunID = req.RunID
	if res.Status == "" {
		res.Status = syncer.StatusRunning
	}
	r.runs[req.RunID] = res
}

// finish stores the terminal result, releases the scope and evicts the
// oldest finished results beyond the limit.
func (r *registry) finish(req syncer.RunRequest, res syncer.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res.RunID = req.RunID
	r.runs[req.RunID] = res
	if r.active[scopeOf(req)] == req.RunID {
		delete(r.active, scopeOf(req))
	}

	r.finished = append(r.finished, req.RunID)
	for r.keep > 0 && len(r.finished) > r.keep {
		delete(r.runs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

func (r *registry) get(id string) (syncer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.runs[id]
	if !ok {
		return syncer.Result{}, ErrRunNotFound
	}
	return res, nil
}
