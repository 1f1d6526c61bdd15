package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/stagehand/internal/config"
	"github.com/atelierhq/stagehand/internal/orchestrator"
)

func setupRouter(t *testing.T, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Settings{
		Home:        t.TempDir(),
		InstallRoot: t.TempDir(), // no sidecar or venv inside
		CorePort:    43297,
	}
	cfg.ApplyDefaults()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(cfg, log)
	return NewRouter(orch, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusStopped(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.CoreRunning || st.CoreHealthy {
		t.Fatalf("expected stopped status, got %+v", st)
	}
}

func TestStartWithoutInstallFails(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodPost, "/api/start")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errorResp
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if er.Error == "" {
		t.Fatalf("expected error detail in body")
	}
}

func TestStopAlwaysOK(t *testing.T) {
	h := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/api/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEmptyBaseDefaultsToAPI(t *testing.T) {
	h := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on default base, got %d", rec.Code)
	}
}

func TestSuggestPort(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/ports/suggest?base=43310")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Port int `json:"port"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Port < 43310 {
		t.Fatalf("suggested port %d below base", out.Port)
	}
}

func TestSuggestPortRejectsBadBase(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/ports/suggest?base=banana")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEventsWithoutStore(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEventsRejectsBadLimit(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/events?limit=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
