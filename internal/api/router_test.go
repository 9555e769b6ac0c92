package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roboplan/roboplan/internal/api/handlers"
	"github.com/roboplan/roboplan/internal/config"
	"github.com/roboplan/roboplan/internal/planning"
	"github.com/roboplan/roboplan/internal/results"
	"github.com/roboplan/roboplan/internal/sessions"
	"github.com/roboplan/roboplan/pkg/models"
)

type echoEngine struct{}

func (echoEngine) Kind() string { return "echo" }

func (echoEngine) Infer(_ context.Context, req *models.InferRequest) (*models.InferResult, error) {
	return &models.InferResult{Answer: "echo: " + req.Prompt}, nil
}

func (echoEngine) HealthCheck(context.Context) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine := echoEngine{}
	tmpl := planning.NewTemplates(rand.New(rand.NewSource(1)))
	runWriter := results.NewWriter(t.TempDir())
	svc := sessions.NewService(engine, tmpl, runWriter, 20, 3)
	h := handlers.New(svc, engine, runWriter)
	srv := httptest.NewServer(NewRouter(config.Load(), h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/sessions", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("create session returned no id")
	}
	return id
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, "GET", srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, "GET", srv.URL+"/version", "")
	if resp.StatusCode != http.StatusOK || body["service"] != "roboplan" {
		t.Errorf("version = %d %v", resp.StatusCode, body)
	}
}

func TestAskFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id

	// Ask before an image is set: rejected, no state change.
	resp, _ := doJSON(t, "POST", base+"/ask", `{"query":"what do you see?"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ask without image status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", base+"/image", `{"image":"scene.jpg"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set image status = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "POST", base+"/ask", `{"query":"what do you see?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ask status = %d", resp.StatusCode)
	}
	if body["answer"] != "echo: what do you see?" {
		t.Errorf("answer = %v", body["answer"])
	}
	if body["turn_number"].(float64) != 1 {
		t.Errorf("turn_number = %v, want 1", body["turn_number"])
	}

	resp, history := doJSON(t, "GET", base+"/history", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	turns, _ := history["turns"].([]any)
	if len(turns) != 2 {
		t.Errorf("history has %d turns, want 2", len(turns))
	}
}

func TestAskRejectsInvalidTask(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id

	doJSON(t, "POST", base+"/image", `{"image":"scene.jpg"}`)
	resp, _ := doJSON(t, "POST", base+"/ask", `{"query":"hi","task":"teleport"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid task status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, "GET", srv.URL+"/api/v1/sessions/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}
}

func TestPlanningFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id

	doJSON(t, "POST", base+"/image", `{"image":"scene.jpg"}`)
	doJSON(t, "POST", base+"/goal", `{"goal":"stack the blocks"}`)
	doJSON(t, "POST", base+"/tasks/completed", `{"task":"clear the table"}`)

	resp, status := doJSON(t, "GET", base+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d", resp.StatusCode)
	}
	if status["goal"] != "stack the blocks" {
		t.Errorf("goal = %v", status["goal"])
	}

	// Templated query via an alias; the rendered prompt includes the goal.
	resp, step := doJSON(t, "POST", base+"/query", `{"query_type":"plan"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d", resp.StatusCode)
	}
	if prompt, _ := step["prompt"].(string); !strings.Contains(prompt, "stack the blocks") {
		t.Errorf("prompt = %q, want goal substituted", prompt)
	}

	resp, _ = doJSON(t, "POST", base+"/query", `{"query_type":"bogus"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus query type status = %d, want 400", resp.StatusCode)
	}
}

func TestPipelineEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id

	// No image: rejected.
	resp, _ := doJSON(t, "POST", base+"/pipeline", `{"goal":"stack the blocks"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pipeline without image status = %d, want 400", resp.StatusCode)
	}

	doJSON(t, "POST", base+"/image", `{"image":"scene.jpg"}`)
	resp, run := doJSON(t, "POST", base+"/pipeline", `{"goal":"stack the blocks"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pipeline status = %d", resp.StatusCode)
	}
	steps, _ := run["steps"].([]any)
	if len(steps) != 4 {
		t.Errorf("pipeline returned %d steps, want 4", len(steps))
	}

	// The run landed on disk.
	resp, _ = doJSON(t, "GET", srv.URL+"/api/v1/runs", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("runs status = %d", resp.StatusCode)
	}
}

type downEngine struct{}

func (downEngine) Kind() string { return "down" }

func (downEngine) Infer(context.Context, *models.InferRequest) (*models.InferResult, error) {
	return nil, errors.New("backend down")
}

func (downEngine) HealthCheck(context.Context) error { return errors.New("backend down") }

// Backend failures surface as 502, not 500: the client did nothing wrong.
func TestInferenceFailureIsBadGateway(t *testing.T) {
	engine := downEngine{}
	tmpl := planning.NewTemplates(rand.New(rand.NewSource(1)))
	runWriter := results.NewWriter(t.TempDir())
	svc := sessions.NewService(engine, tmpl, runWriter, 20, 3)
	h := handlers.New(svc, engine, runWriter)
	srv := httptest.NewServer(NewRouter(config.Load(), h))
	t.Cleanup(srv.Close)

	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id
	doJSON(t, "POST", base+"/image", `{"image":"scene.jpg"}`)

	resp, _ := doJSON(t, "POST", base+"/ask", `{"query":"what do you see?"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("ask with down backend status = %d, want 502", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", base+"/query", `{"query_type":"plan"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("query with down backend status = %d, want 502", resp.StatusCode)
	}
}

func TestQueryTypesCatalog(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/querytypes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 9 {
		t.Errorf("catalog has %d query types, want 9", len(out))
	}
	for _, e := range out {
		phrasings, _ := e["phrasings"].([]any)
		if len(phrasings) != 5 {
			t.Errorf("%v has %d phrasings, want 5", e["name"], len(phrasings))
		}
	}
}

func TestSettingsToggle(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/api/v1/sessions/" + id

	resp, info := doJSON(t, "POST", base+"/settings", `{"use_context":false,"thinking":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settings status = %d", resp.StatusCode)
	}
	if info["use_context"].(bool) || info["thinking"].(bool) {
		t.Errorf("settings not applied: %v", info)
	}
}
