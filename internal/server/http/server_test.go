package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctxpack/ctxpack/internal/adapters/content"
	"github.com/ctxpack/ctxpack/internal/diff"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
	"github.com/ctxpack/ctxpack/internal/generate"
	"github.com/ctxpack/ctxpack/internal/session"
)

type fakePersist struct{}

func (fakePersist) SaveIdentities([]ports.SessionIdentity) error { return nil }
func (fakePersist) SaveSnapshot(string, []byte) error            { return nil }
func (fakePersist) DeleteSnapshot(string) error                  { return nil }
func (fakePersist) LoadAll() (*ports.LoadResult, error) {
	return &ports.LoadResult{Snapshots: make(map[string][]byte)}, nil
}
func (fakePersist) Close() error { return nil }

type nilResolver struct{}

func (nilResolver) Resolve(context.Context, string) (ports.Repository, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Store) {
	t.Helper()
	store := session.NewStore(fakePersist{}, nil)
	t.Cleanup(store.Close)

	gen := generate.New(content.NewReader(100), nil)
	agg := diff.NewAggregator(nilResolver{}, 2, nil)
	s := New("127.0.0.1", 8930, store, agg, gen, nil, nil)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, fields
}

func TestSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, fields := doJSON(t, "POST", ts.URL+"/api/sessions", CreateSessionRequest{Name: "review"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil || id == "" {
		t.Fatalf("create returned no id: %v", err)
	}

	// Duplicate name conflicts.
	resp, _ = doJSON(t, "POST", ts.URL+"/api/sessions", CreateSessionRequest{Name: "review"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	resp, fields = doJSON(t, "GET", ts.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var sessions []SessionInfo
	if err := json.Unmarshal(fields["sessions"], &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "review" {
		t.Errorf("sessions = %+v", sessions)
	}

	resp, _ = doJSON(t, "PUT", ts.URL+"/api/sessions/"+id, RenameSessionRequest{Name: "audit"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rename status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "DELETE", ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestEntryOperations(t *testing.T) {
	ts, store := newTestServer(t)

	sess, err := store.Create("work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := ts.URL + "/api/sessions/" + sess.ID

	resp, fields := doJSON(t, "POST", base+"/entries", InsertEntriesRequest{
		Items: []InsertItem{
			{Location: "/proj/a.go"},
			{Location: "/proj/b.go"},
			{Location: "/proj/a.go"}, // duplicate sibling
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert status = %d", resp.StatusCode)
	}
	var added, skipped int
	_ = json.Unmarshal(fields["added"], &added)
	_ = json.Unmarshal(fields["skipped"], &skipped)
	if added != 2 || skipped != 1 {
		t.Errorf("insert = %d added %d skipped, want 2/1", added, skipped)
	}

	resp, _ = doJSON(t, "POST", base+"/reorder", ReorderRequest{FromIndex: 0, ToIndex: 1})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reorder status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "POST", base+"/reorder", ReorderRequest{FromIndex: 0, ToIndex: 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range reorder status = %d, want 400", resp.StatusCode)
	}

	resp, fields = doJSON(t, "DELETE", base+"/entries?location="+"%2Fproj%2Fb.go", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status = %d", resp.StatusCode)
	}
	var removed bool
	_ = json.Unmarshal(fields["removed"], &removed)
	if !removed {
		t.Error("remove reported false")
	}

	resp, fields = doJSON(t, "POST", base+"/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status = %d", resp.StatusCode)
	}
	var undone bool
	_ = json.Unmarshal(fields["undone"], &undone)
	if !undone {
		t.Error("undo reported false")
	}

	if sess.Len() != 2 {
		t.Errorf("session has %d entries after undo, want 2", sess.Len())
	}
}

func TestBlocksAndTreeEndpoints(t *testing.T) {
	ts, store := newTestServer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sess, err := store.Create("work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := ts.URL + "/api/sessions/" + sess.ID

	resp, _ := doJSON(t, "POST", base+"/entries", InsertEntriesRequest{
		Items: []InsertItem{{Location: path}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert status = %d", resp.StatusCode)
	}

	resp, fields := doJSON(t, "GET", base+"/blocks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("blocks status = %d", resp.StatusCode)
	}
	var blocks string
	_ = json.Unmarshal(fields["blocks"], &blocks)
	if !strings.Contains(blocks, "package main") {
		t.Errorf("blocks missing content:\n%s", blocks)
	}

	resp, fields = doJSON(t, "GET", base+"/tree", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tree status = %d", resp.StatusCode)
	}
	var tree string
	_ = json.Unmarshal(fields["tree"], &tree)
	if !strings.Contains(tree, "main.go") {
		t.Errorf("tree missing entry:\n%s", tree)
	}
}

func TestDiffEndpointWithNoRepositories(t *testing.T) {
	ts, store := newTestServer(t)

	sess, err := store.Create("work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := ts.URL + "/api/sessions/" + sess.ID

	resp, _ := doJSON(t, "POST", base+"/entries", InsertEntriesRequest{
		Items: []InsertItem{{Location: "/untracked/file.txt"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert status = %d", resp.StatusCode)
	}

	resp, fields := doJSON(t, "GET", base+"/diff", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("diff status = %d", resp.StatusCode)
	}
	var skipped int
	_ = json.Unmarshal(fields["skipped"], &skipped)
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	var text string
	_ = json.Unmarshal(fields["diff"], &text)
	if text != "" {
		t.Errorf("diff text = %q, want empty", text)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, route := range []string{"/api/sessions/missing", "/api/sessions/missing/diff", "/api/sessions/missing/tree"} {
		resp, _ := doJSON(t, "GET", ts.URL+route, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", route, resp.StatusCode)
		}
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, fields := doJSON(t, "GET", ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var status string
	_ = json.Unmarshal(fields["status"], &status)
	if status != "ok" {
		t.Errorf("status = %q, want ok", status)
	}
}
