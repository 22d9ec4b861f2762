package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vortex.app/relay/common/llm"
	"vortex.app/relay/internal/blob"
	"vortex.app/relay/internal/mail"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/store"
)

type fakeAudit struct {
	mu      sync.Mutex
	records []model.AuditRecord
	failOn  string
}

func (f *fakeAudit) Put(_ context.Context, rec model.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == f.failOn {
		return errors.New("write failed")
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeProfiles struct {
	profiles map[string]model.UserProfile
	err      error
}

func (f *fakeProfiles) Get(_ context.Context, username string) (*model.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) Put(_ context.Context, p model.UserProfile) error {
	f.profiles[p.GithubUsername] = p
	return nil
}

type fakeProvider struct {
	audit    *fakeAudit
	profiles *fakeProfiles
}

func (p fakeProvider) Audit() store.AuditStore      { return p.audit }
func (p fakeProvider) Profiles() store.ProfileStore { return p.profiles }

// fakeTx stages writes and only publishes them to committed when fn succeeds.
type fakeTx struct {
	committed *fakeAudit
	failOn    string
	runs      int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(store.Provider) error) error {
	f.runs++
	staged := &fakeAudit{failOn: f.failOn}
	if err := fn(fakeProvider{audit: staged, profiles: &fakeProfiles{}}); err != nil {
		return err
	}
	for _, rec := range staged.records {
		_ = f.committed.Put(ctx, rec)
	}
	return nil
}

type fakeGitHub struct {
	mu       sync.Mutex
	prFiles  []model.DiffFile
	commits  map[string][]model.DiffFile
	err      error
	prCalls  int
	shaCalls []string
}

func (f *fakeGitHub) PullRequestFiles(_ context.Context, _ int64, _ string, _ int) ([]model.DiffFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prCalls++
	return f.prFiles, f.err
}

func (f *fakeGitHub) CommitFiles(_ context.Context, _ int64, _ string, sha string) ([]model.DiffFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shaCalls = append(f.shaCalls, sha)
	if f.err != nil {
		return nil, f.err
	}
	return f.commits[sha], nil
}

type fakeGitLab struct {
	mrFiles []model.DiffFile
	iid     int64
	project string
}

func (f *fakeGitLab) MergeRequestFiles(_ context.Context, project string, iid int64) ([]model.DiffFile, error) {
	f.project, f.iid = project, iid
	return f.mrFiles, nil
}

func (f *fakeGitLab) CommitFiles(_ context.Context, project, _ string) ([]model.DiffFile, error) {
	f.project = project
	return f.mrFiles, nil
}

type fakeLLM struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *fakeLLM) Model() string { return "test-model" }

type fakeMail struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakeBlobs keeps objects in process and reports misses as blob.ErrNotFound.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	f.types[key] = contentType
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeBlobs) ContentType(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[key]
}

func (f *fakeBlobs) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}
