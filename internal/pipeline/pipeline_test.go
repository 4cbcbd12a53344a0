package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/rules"
	"github.com/StinkyLord/gh-sbom-export/internal/transform"
)

type fakeFetcher struct {
	records  map[string][]model.SourceRecord
	releases map[string]string
	fail     map[string]error
	relFail  map[string]error
}

func (f *fakeFetcher) FetchSBOM(_ context.Context, repo model.Repository) ([]model.SourceRecord, error) {
	if err := f.fail[repo.Slug()]; err != nil {
		return nil, err
	}
	return f.records[repo.Slug()], nil
}

func (f *fakeFetcher) LatestRelease(_ context.Context, repo model.Repository) (*string, error) {
	if err := f.relFail[repo.Slug()]; err != nil {
		return nil, err
	}
	if tag, ok := f.releases[repo.Slug()]; ok {
		return &tag, nil
	}
	return nil, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, fileName string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.files[fileName] = data
	return "mem://" + fileName, nil
}

var (
	hello = model.Repository{Owner: "octo", Name: "hello"}
	world = model.Repository{Owner: "octo", Name: "world"}
	fixed = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		records: map[string][]model.SourceRecord{
			"octo/hello": {
				{Name: "pip:requests", Version: model.Version("2.31.0")},
				{Name: "actions/checkout", Version: model.Version("v4")},
				{Name: "mylib"},
			},
			"octo/world": {
				{Name: "npm:left-pad", Version: model.Version("^1.3.0")},
			},
		},
		releases: map[string]string{"octo/hello": "v2.0.0"},
		fail:     map[string]error{},
		relFail:  map[string]error{},
	}
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read %s: %v", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("%s is not valid JSON: %v", path, err)
	}
	return doc
}

func TestRunWritesOneFilePerRepository(t *testing.T) {
	dir := t.TempDir()
	pub := &fakePublisher{files: map[string][]byte{}}
	r := New(newFetcher(), transform.NewAssembler(rules.Default()), Options{
		OutputDir: dir,
		Workers:   2,
		Publisher: pub,
		Now:       func() time.Time { return fixed },
	})

	res := r.Run(context.Background(), []model.Repository{hello, world})
	if err := res.Err(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Written != 2 || res.Failed != 0 {
		t.Errorf("written/failed = %d/%d, want 2/0", res.Written, res.Failed)
	}

	first := res.Repos[0]
	if first.Repository != hello || first.Records != 3 || first.Components != 2 || first.Excluded != 1 {
		t.Errorf("hello result = %+v", first)
	}
	if first.RulesVersion != rules.Version {
		t.Errorf("hello rules version = %q, want %q", first.RulesVersion, rules.Version)
	}
	if first.Path != filepath.Join(dir, "hello.json") || first.Published != "mem://hello.json" {
		t.Errorf("hello path/published = %q/%q", first.Path, first.Published)
	}

	doc := readDoc(t, filepath.Join(dir, "hello.json"))
	meta := doc["metadata"].(map[string]any)
	if meta["timestamp"] != "2024-06-01T00:00:00+00:00" {
		t.Errorf("timestamp = %v", meta["timestamp"])
	}
	root := meta["component"].(map[string]any)
	if root["version"] != "2.0.0" || root["name"] != "octo/hello" {
		t.Errorf("root = %v", root)
	}
	if comps := doc["components"].([]any); len(comps) != 2 {
		t.Errorf("hello has %d components, want 2", len(comps))
	}

	worldDoc := readDoc(t, filepath.Join(dir, "world.json"))
	worldRoot := worldDoc["metadata"].(map[string]any)["component"].(map[string]any)
	if worldRoot["version"] != "unknown" {
		t.Errorf("repository without releases should have root version unknown, got %v", worldRoot["version"])
	}

	if len(pub.files) != 2 {
		t.Errorf("published %d files, want 2", len(pub.files))
	}
	onDisk, _ := os.ReadFile(filepath.Join(dir, "world.json"))
	if !bytes.Equal(onDisk, pub.files["world.json"]) {
		t.Error("published bytes differ from the written file")
	}
}

func TestRunContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	f := newFetcher()
	f.fail["octo/hello"] = errors.New("E_AUTH_INVALID: HTTP 401")

	r := New(f, transform.NewAssembler(rules.Default()), Options{OutputDir: dir})
	res := r.Run(context.Background(), []model.Repository{hello, world})

	if res.Written != 1 || res.Failed != 1 {
		t.Fatalf("written/failed = %d/%d, want 1/1", res.Written, res.Failed)
	}
	if res.Repos[0].Err == nil || res.Repos[1].Err != nil {
		t.Errorf("errors = %v / %v", res.Repos[0].Err, res.Repos[1].Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hello.json")); !os.IsNotExist(err) {
		t.Error("failed repository must not leave an output file")
	}
	if _, err := os.Stat(filepath.Join(dir, "world.json")); err != nil {
		t.Errorf("world.json missing: %v", err)
	}
	if err := res.Err(); err == nil {
		t.Error("Result.Err() should report the failure")
	}
}

func TestRunReleaseLookupFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	f := newFetcher()
	f.relFail["octo/hello"] = errors.New("E_ENDPOINT_UNREACHABLE")

	res := New(f, transform.NewAssembler(rules.Default()), Options{OutputDir: dir}).
		Run(context.Background(), []model.Repository{hello})
	if res.Failed != 0 {
		t.Fatalf("release lookup failure failed the repository: %v", res.Err())
	}
	root := readDoc(t, filepath.Join(dir, "hello.json"))["metadata"].(map[string]any)["component"].(map[string]any)
	if root["version"] != "unknown" {
		t.Errorf("root version = %v, want unknown", root["version"])
	}
}

func TestRunCollisionFailsRepository(t *testing.T) {
	dir := t.TempDir()
	f := newFetcher()
	f.records["octo/hello"] = []model.SourceRecord{
		{Name: "npm:a-b", Version: model.Version("1")},
		{Name: "npm:a/b", Version: model.Version("1")},
	}

	res := New(f, transform.NewAssembler(rules.Default()), Options{OutputDir: dir}).
		Run(context.Background(), []model.Repository{hello})
	if res.Failed != 1 || !errors.Is(res.Repos[0].Err, transform.ErrRefKeyCollision) {
		t.Fatalf("err = %v, want ref key collision", res.Repos[0].Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hello.json")); !os.IsNotExist(err) {
		t.Error("colliding repository must not be written")
	}
}

func TestRunPublishFailure(t *testing.T) {
	dir := t.TempDir()
	pub := &fakePublisher{err: errors.New("bucket gone")}
	res := New(newFetcher(), transform.NewAssembler(rules.Default()), Options{OutputDir: dir, Publisher: pub}).
		Run(context.Background(), []model.Repository{world})
	if res.Failed != 1 {
		t.Fatalf("publish failure should fail the repository")
	}
	if res.Repos[0].Path == "" {
		t.Error("the local file is written before publishing")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(newFetcher(), transform.NewAssembler(rules.Default()), Options{OutputDir: t.TempDir()}).
		Run(ctx, []model.Repository{hello, world})
	if res.Failed != 2 {
		t.Errorf("failed = %d, want 2", res.Failed)
	}
	for _, rr := range res.Repos {
		if !errors.Is(rr.Err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", rr.Repository.Slug(), rr.Err)
		}
	}
}

func TestRunWithProgressBar(t *testing.T) {
	var buf bytes.Buffer
	res := New(newFetcher(), transform.NewAssembler(rules.Default()), Options{OutputDir: t.TempDir(), Workers: 2, Progress: &buf}).
		Run(context.Background(), []model.Repository{hello, world})
	if res.Written != 2 {
		t.Errorf("written = %d, want 2: %v", res.Written, res.Err())
	}
}

func TestFileNames(t *testing.T) {
	repos := []model.Repository{
		{Owner: "a", Name: "tool"},
		{Owner: "b", Name: "Tool"},
		{Owner: "a", Name: "lib"},
	}
	got := FileNames(repos)
	want := []string{"a-tool.json", "b-Tool.json", "lib.json"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FileNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
