package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/germanoeich/dockctl/internal/actions"
	"github.com/germanoeich/dockctl/internal/config"
	"github.com/germanoeich/dockctl/internal/console"
	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/dockerx"
)

func newTestApp(t *testing.T, fake *dockerx.FakeClient) *fiber.App {
	t.Helper()
	cfg := config.Default()
	cfg.Poll = config.PollConfig{Containers: time.Hour, Images: time.Hour, Networks: time.Hour, Volumes: time.Hour}
	c := console.New(cfg, fake, nil)
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for {
		ready := true
		for _, st := range c.Status() {
			ready = ready && st.HasData
		}
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("console never fetched its first snapshots")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return NewApp(c, nil)
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	var obj map[string]any
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &obj); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode, obj
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.Errorf(core.ValidationFailed, "x", "bad"), http.StatusBadRequest},
		{core.Errorf(core.PreconditionFailed, "x", "no"), http.StatusConflict},
		{core.Errorf(core.ActionInProgress, "x", "busy"), http.StatusConflict},
		{core.Errorf(core.BackendRejected, "x", "refused"), http.StatusUnprocessableEntity},
		{core.Errorf(core.TransportFailure, "x", "down"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestContainers(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddContainer("web", core.StateRunning)
	app := newTestApp(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}
	var list []core.ContainerSummary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Key() != "web" || list[0].State != core.StateRunning {
		t.Fatalf("containers = %+v", list)
	}
}

func TestContainerActions(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddContainer("web", core.StateRunning)
	app := newTestApp(t, fake)

	status, body := do(t, app, http.MethodPost, "/api/v1/containers/web/delete", "")
	if status != http.StatusConflict || body["kind"] != string(core.PreconditionFailed) {
		t.Fatalf("delete running = %d %v", status, body)
	}
	if n := fake.Calls("RemoveContainer"); n != 0 {
		t.Fatalf("RemoveContainer calls = %d", n)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/containers/web/pause", "")
	if status != http.StatusOK || body["phase"] != string(actions.Succeeded) {
		t.Fatalf("pause = %d %v", status, body)
	}

	status, body = do(t, app, http.MethodGet, "/api/v1/containers/web/actions", "")
	if status != http.StatusOK {
		t.Fatalf("actions = %d", status)
	}
	available, _ := body["available"].([]any)
	if len(available) != 2 {
		t.Fatalf("available in paused state = %v, want [unpause delete]", available)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/containers/web/restart", "")
	if status != http.StatusBadRequest || body["kind"] != string(core.ValidationFailed) {
		t.Fatalf("unknown action = %d %v", status, body)
	}
}

func TestContainerActionStateSurvivesLaterRequests(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddContainer("aaaa", core.StateRunning)
	fake.AddContainer("bbbb", core.StateRunning)
	app := newTestApp(t, fake)

	for _, name := range []string{"aaaa", "bbbb"} {
		if status, body := do(t, app, http.MethodPost, "/api/v1/containers/"+name+"/pause", ""); status != http.StatusOK {
			t.Fatalf("pause %s = %d %v", name, status, body)
		}
	}
	for _, name := range []string{"aaaa", "bbbb"} {
		_, body := do(t, app, http.MethodGet, "/api/v1/containers/"+name+"/actions", "")
		state, _ := body["state"].(map[string]any)
		if state["phase"] != string(actions.Succeeded) || state["action"] != string(actions.Pause) {
			t.Errorf("%s state = %v, want succeeded pause", name, state)
		}
	}
}

func TestCreateContainerValidation(t *testing.T) {
	fake := dockerx.NewFakeClient()
	app := newTestApp(t, fake)

	status, body := do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"nginx","portMapping":"0:80"}`)
	if status != http.StatusBadRequest || body["kind"] != string(core.ValidationFailed) {
		t.Fatalf("bad port mapping = %d %v", status, body)
	}

	status, _ = do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"nginx","portMapping":"8080:80"}`)
	if status != http.StatusCreated {
		t.Fatalf("create = %d", status)
	}

	status, _ = do(t, app, http.MethodPost, "/api/v1/containers", `{not json`)
	if status != http.StatusBadRequest {
		t.Fatalf("malformed body = %d", status)
	}
}

func TestBackendAndTransportErrors(t *testing.T) {
	fake := dockerx.NewFakeClient()
	app := newTestApp(t, fake)

	status, body := do(t, app, http.MethodDelete, "/api/v1/volumes/missing", "")
	if status != http.StatusUnprocessableEntity || body["kind"] != string(core.BackendRejected) {
		t.Fatalf("remove missing volume = %d %v", status, body)
	}

	fake.SetError("CreateVolume", errors.New("connection reset"))
	status, body = do(t, app, http.MethodPost, "/api/v1/volumes", `{"name":"data"}`)
	if status != http.StatusBadGateway || body["kind"] != string(core.TransportFailure) {
		t.Fatalf("create volume on broken transport = %d %v", status, body)
	}
}

func TestPullImage(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.SetPullStream("nginx:latest", []string{
		`{"status":"Downloading","id":"L1","progressDetail":{"current":50,"total":100}}`,
		`{"status":"Downloading","id":"L1","progressDetail":{"current":100,"total":100}}`,
	})
	app := newTestApp(t, fake)

	status, body := do(t, app, http.MethodPost, "/api/v1/images/pull", `{"image":"nginx:latest"}`)
	if status != http.StatusOK {
		t.Fatalf("pull = %d %v", status, body)
	}
	percent, _ := body["percent"].(map[string]any)
	if percent["L1"] != float64(100) {
		t.Fatalf("percent = %v", percent)
	}

	status, _ = do(t, app, http.MethodDelete, "/api/v1/images?image=nginx:latest", "")
	if status != http.StatusNoContent {
		t.Fatalf("remove image = %d", status)
	}
}

func TestNetworkMembership(t *testing.T) {
	fake := dockerx.NewFakeClient()
	app := newTestApp(t, fake)

	if status, _ := do(t, app, http.MethodPost, "/api/v1/networks", `{"name":"backend"}`); status != http.StatusCreated {
		t.Fatalf("create network = %d", status)
	}
	if status, _ := do(t, app, http.MethodPost, "/api/v1/networks/net-backend/containers/web", ""); status != http.StatusNoContent {
		t.Fatalf("connect = %d", status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/networks/net-backend/containers", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}
	var members []core.NetworkMembership
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].ID != "web" {
		t.Fatalf("members = %+v", members)
	}

	if status, _ := do(t, app, http.MethodDelete, "/api/v1/networks/net-backend", ""); status != http.StatusUnprocessableEntity {
		t.Fatalf("remove in-use network = %d", status)
	}
	if status, _ := do(t, app, http.MethodDelete, "/api/v1/networks/net-backend/containers/web", ""); status != http.StatusNoContent {
		t.Fatalf("disconnect = %d", status)
	}
	if status, _ := do(t, app, http.MethodDelete, "/api/v1/networks/net-backend", ""); status != http.StatusNoContent {
		t.Fatalf("remove network = %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, dockerx.NewFakeClient())

	status, body := do(t, app, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", status, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "dockctl_poll_ticks_total") {
		t.Fatalf("metrics output missing poll counter")
	}
}

func getLines(t *testing.T, app *fiber.App, path string) []core.LogLine {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), 5000)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d", path, resp.StatusCode)
	}
	var lines []core.LogLine
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return lines
}

func TestContainerLogs(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddContainer("web", core.StateRunning)
	fake.AddLogLines("web", []string{
		"level=debug msg=boot",
		"[INFO] listening on :80",
		`{"level":"error","msg":"upstream timeout"}`,
		"plain line",
	})
	app := newTestApp(t, fake)

	deadline := time.Now().Add(2 * time.Second)
	for len(getLines(t, app, "/api/v1/containers/web/logs")) < 4 {
		if time.Now().After(deadline) {
			t.Fatal("log lines never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := getLines(t, app, "/api/v1/containers/web/logs?level=info"); len(got) != 3 {
		t.Errorf("level=info kept %d lines, want 3 (debug dropped, unleveled kept)", len(got))
	}
	if got := getLines(t, app, "/api/v1/containers/web/logs?q=/time.?out/"); len(got) != 1 || got[0].Level != core.SevError {
		t.Errorf("regex query = %+v", got)
	}
	if got := getLines(t, app, "/api/v1/containers/web/logs?q=LISTENING&q=plain&exclude=plain"); len(got) != 1 {
		t.Errorf("include/exclude = %+v", got)
	}
	if got := getLines(t, app, "/api/v1/containers/web/logs?since=3"); len(got) != 1 || got[0].Text != "plain line" {
		t.Errorf("since = %+v", got)
	}
}

func TestContainerLogsValidation(t *testing.T) {
	app := newTestApp(t, dockerx.NewFakeClient())
	for _, q := range []string{"since=-1", "level=loud", "q=/(/"} {
		if status, _ := do(t, app, http.MethodGet, "/api/v1/containers/web/logs?"+q, ""); status != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", q, status)
		}
	}
}
