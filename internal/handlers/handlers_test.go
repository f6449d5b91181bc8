package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
	"github.com/codebuildervaibhav/video-enhancer/internal/remote"
	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/storage"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

type manualTask struct {
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() { t.stopped = true }

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) Every(d time.Duration, fn func()) controller.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) Tick() {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if !t.stopped {
			t.fn()
		}
	}
}

// backend is a scripted stand-in for the enhancement service
type backend struct {
	mu          sync.Mutex
	uploadCode  int
	status      string
	progress    float64
	resultURL   string
	cancelCalls int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/upload":
		if b.uploadCode != 0 {
			w.WriteHeader(b.uploadCode)
			return
		}
		fmt.Fprint(w, `{"jobId":"job-1","filename":"clip.mp4"}`)
	case r.URL.Path == "/api/enhance":
		fmt.Fprint(w, `{"ok":true}`)
	case r.URL.Path == "/api/status":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":        "job-1",
			"status":    b.status,
			"progress":  b.progress,
			"resultUrl": b.resultURL,
		})
	case r.Method == http.MethodDelete:
		b.cancelCalls++
		fmt.Fprint(w, `{"ok":true}`)
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	app     *fiber.App
	hub     *Hub
	ctrl    *controller.JobController
	sched   *manualScheduler
	backend *backend
	tempDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	be := &backend{status: types.StatusProcessing}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	client, err := remote.NewClient(srv.URL, remote.Endpoints{}, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tempDir := t.TempDir()
	hub := NewHub()
	sched := &manualScheduler{}
	ctrl := controller.New(client, hub, hub, controller.Options{
		Origin:    client.BaseURL(),
		Scheduler: sched,
		Release:   func(f selector.File) { selector.Unstage(f, tempDir) },
	})
	t.Cleanup(ctrl.Close)

	db, err := storage.NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SaveJob(types.Job{ID: "old-1", FileName: "a.mp4", FileType: types.MimeMP4, Model: types.DefaultModel,
		State: string(types.JobCompleted), CreatedAt: time.Now().Add(-time.Hour)})

	control := NewControlHandler(context.Background(), ctrl, types.DefaultModels, types.DefaultModel)
	sel := NewSelectHandler(ctrl, tempDir)
	history := NewHistoryHandler(db)

	app := fiber.New()
	app.Get("/models", control.Models)
	app.Get("/state", control.State)
	app.Post("/select", sel.Handle)
	app.Post("/enhance", control.Enhance)
	app.Post("/cancel", control.Cancel)
	app.Post("/reset", control.Reset)
	app.Get("/history", history.List)
	app.Get("/history/:id", history.Get)

	return &harness{app: app, hub: hub, ctrl: ctrl, sched: sched, backend: be, tempDir: tempDir}
}

func (h *harness) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("invalid JSON %q: %v", body, err)
		}
	}
	return resp.StatusCode, out
}

func selectRequest(t *testing.T, name, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/select", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func stagedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	return len(entries)
}

func TestModels(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, httptest.NewRequest(http.MethodGet, "/models", nil))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["default"] != types.DefaultModel {
		t.Errorf("expected default %s, got %v", types.DefaultModel, body["default"])
	}
	models, _ := body["models"].([]interface{})
	if len(models) != len(types.DefaultModels) {
		t.Errorf("expected %d models, got %d", len(types.DefaultModels), len(models))
	}
}

func TestSelect(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, selectRequest(t, "clip.mp4", "video/mp4", []byte("fake video")))
	if code != 200 {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	if body["file"] != "clip.mp4 • video/mp4 • 10.0 B" {
		t.Errorf("unexpected file meta %v", body["file"])
	}
	if h.ctrl.State() != controller.StateFileSelected {
		t.Errorf("expected file_selected, got %s", h.ctrl.State())
	}
	if n := stagedFiles(t, h.tempDir); n != 1 {
		t.Errorf("expected 1 staged file, got %d", n)
	}
}

func TestSelect_Errors(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, selectRequest(t, "notes.txt", "text/plain", []byte("hello")))
	if code != 400 || body["code"] != "ERR_UNSUPPORTED_FORMAT" {
		t.Errorf("expected 400 ERR_UNSUPPORTED_FORMAT, got %d %v", code, body)
	}
	if n := stagedFiles(t, h.tempDir); n != 0 {
		t.Errorf("expected rejected file to be removed, got %d staged", n)
	}
	if h.ctrl.State() != controller.StateIdle {
		t.Errorf("expected idle, got %s", h.ctrl.State())
	}

	req := httptest.NewRequest(http.MethodPost, "/select", nil)
	code, body = h.do(t, req)
	if code != 400 || body["code"] != "ERR_NO_FILE" {
		t.Errorf("expected 400 ERR_NO_FILE, got %d %v", code, body)
	}
}

func TestEnhance_RequiresSelection(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, jsonRequest(http.MethodPost, "/enhance", ""))
	if code != 400 || body["code"] != "ERR_NO_FILE" {
		t.Errorf("expected 400 ERR_NO_FILE, got %d %v", code, body)
	}
}

func TestEnhance_UnknownModel(t *testing.T) {
	h := newHarness(t)
	h.do(t, selectRequest(t, "clip.mp4", "video/mp4", []byte("fake video")))

	code, body := h.do(t, jsonRequest(http.MethodPost, "/enhance", `{"model":"nope"}`))
	if code != 400 || body["code"] != "ERR_INVALID_MODEL" {
		t.Errorf("expected 400 ERR_INVALID_MODEL, got %d %v", code, body)
	}
}

func TestEnhance_FullFlow(t *testing.T) {
	h := newHarness(t)
	sub := h.hub.subscribe()
	defer h.hub.unsubscribe(sub)

	h.do(t, selectRequest(t, "clip.mp4", "video/mp4", []byte("fake video")))

	code, body := h.do(t, jsonRequest(http.MethodPost, "/enhance", `{"model":"realesr-animevideov3-x2"}`))
	if code != 202 {
		t.Fatalf("expected 202, got %d (%v)", code, body)
	}
	if body["state"] != string(controller.StatePolling) || body["job_id"] != "job-1" {
		t.Errorf("unexpected snapshot %v", body)
	}

	h.backend.mu.Lock()
	h.backend.status = types.StatusCompleted
	h.backend.progress = 100
	h.backend.resultURL = "/results/job-1.mp4"
	h.backend.mu.Unlock()
	h.sched.Tick()

	snap := h.ctrl.Snapshot()
	if snap.State != controller.StateCompleted {
		t.Fatalf("expected completed, got %s", snap.State)
	}
	if !bytes.HasSuffix([]byte(snap.ResultURL), []byte("/results/job-1.mp4")) {
		t.Errorf("unexpected result url %s", snap.ResultURL)
	}

	var sawResult bool
	for len(sub.send) > 0 {
		var ev Event
		json.Unmarshal(<-sub.send, &ev)
		if ev.Type == EventResult && ev.URL != nil && *ev.URL == snap.ResultURL {
			sawResult = true
		}
	}
	if !sawResult {
		t.Error("expected a result event to be broadcast")
	}
}

func TestEnhance_UploadFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.uploadCode = 500
	sub := h.hub.subscribe()
	defer h.hub.unsubscribe(sub)

	h.do(t, selectRequest(t, "clip.mp4", "video/mp4", []byte("fake video")))

	code, body := h.do(t, jsonRequest(http.MethodPost, "/enhance", ""))
	if code != 502 || body["code"] != "ERR_UPLOAD_FAILED" {
		t.Errorf("expected 502 ERR_UPLOAD_FAILED, got %d %v", code, body)
	}
	if body["error"] != "Upload failed: 500" {
		t.Errorf("unexpected error %v", body["error"])
	}

	var notified bool
	for len(sub.send) > 0 {
		var ev Event
		json.Unmarshal(<-sub.send, &ev)
		if ev.Type == EventNotify && ev.Message == "Upload failed: 500" {
			notified = true
		}
	}
	if !notified {
		t.Error("expected the failure to be pushed to the page")
	}
}

func TestCancelAndReset(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, jsonRequest(http.MethodPost, "/cancel", ""))
	if code != 409 || body["code"] != "ERR_NO_JOB" {
		t.Errorf("expected 409 ERR_NO_JOB, got %d %v", code, body)
	}

	h.do(t, selectRequest(t, "clip.mp4", "video/mp4", []byte("fake video")))
	h.do(t, jsonRequest(http.MethodPost, "/enhance", ""))

	code, body = h.do(t, jsonRequest(http.MethodPost, "/cancel", ""))
	if code != 200 {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	if body["label"] != controller.LabelCanceled || body["state"] != string(controller.StateFailed) {
		t.Errorf("unexpected snapshot %v", body)
	}
	h.backend.mu.Lock()
	cancels := h.backend.cancelCalls
	h.backend.mu.Unlock()
	if cancels != 1 {
		t.Errorf("expected 1 cancel call, got %d", cancels)
	}

	code, body = h.do(t, jsonRequest(http.MethodPost, "/reset", ""))
	if code != 200 || body["state"] != string(controller.StateIdle) || body["label"] != controller.LabelIdle {
		t.Errorf("unexpected reset response %d %v", code, body)
	}
	if body["trigger_enabled"] != false {
		t.Error("expected trigger disabled after reset")
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t)

	resp, err := h.app.Test(httptest.NewRequest(http.MethodGet, "/history?limit=10", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var jobs []storage.HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "old-1" {
		t.Errorf("unexpected history %+v", jobs)
	}

	code, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/history/missing", nil))
	if code != 404 {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHub_DropsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	hub.bufferSize = 1
	sub := hub.subscribe()

	hub.SetLabel("one")
	hub.SetLabel("two")

	if len(sub.send) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(sub.send))
	}
	var ev Event
	json.Unmarshal(<-sub.send, &ev)
	if ev.Type != EventLabel || ev.Label != "one" {
		t.Errorf("unexpected event %+v", ev)
	}

	hub.unsubscribe(sub)
	hub.unsubscribe(sub)
	if hub.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", hub.Subscribers())
	}
	hub.SetProgress(10, "after")
}

func TestHub_EventEncoding(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe()
	defer hub.unsubscribe(sub)

	hub.ShowResult("")
	hub.SetTriggerEnabled(false)

	var result, trigger map[string]interface{}
	json.Unmarshal(<-sub.send, &result)
	json.Unmarshal(<-sub.send, &trigger)

	if v, ok := result["url"]; !ok || v != "" {
		t.Errorf("expected an explicit empty url to clear the result, got %v", result)
	}
	if v, ok := trigger["enabled"]; !ok || v != false {
		t.Errorf("expected enabled=false, got %v", trigger)
	}
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(Event{Type: EventSnapshot, State: controller.Snapshot{Label: controller.LabelIdle}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ev map[string]interface{}
	json.Unmarshal(data, &ev)
	if ev["type"] != EventSnapshot || ev["state"] == nil {
		t.Errorf("unexpected snapshot event %v", ev)
	}

	if _, err := encodeEvent(Event{Type: EventSnapshot, State: make(chan int)}); err == nil {
		t.Error("expected an error for a state that cannot be encoded")
	}
}

func TestSelect_ReplaceAndResetRemoveStagedFiles(t *testing.T) {
	h := newHarness(t)

	h.do(t, selectRequest(t, "first.mp4", "video/mp4", []byte("first")))
	code, body := h.do(t, selectRequest(t, "second.mp4", "video/mp4", []byte("second")))
	if code != 200 {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	if n := stagedFiles(t, h.tempDir); n != 1 {
		t.Errorf("expected only the current selection staged, got %d files", n)
	}
	if filepath.Dir(h.ctrl.SelectedPath()) != h.tempDir {
		t.Errorf("expected the selection to live in %s, got %q", h.tempDir, h.ctrl.SelectedPath())
	}

	h.do(t, jsonRequest(http.MethodPost, "/reset", ""))
	if n := stagedFiles(t, h.tempDir); n != 0 {
		t.Errorf("expected reset to remove the staged file, got %d files", n)
	}
}

func TestUnstagedFile(t *testing.T) {
	fh := &multipart.FileHeader{
		Filename: "big.mp4",
		Size:     types.MaxUploadBytes + 1,
		Header:   textproto.MIMEHeader{"Content-Type": {"video/mp4; codecs=avc1"}},
	}
	f := unstagedFile(fh)
	if f.Type != types.MimeMP4 || f.Name != "big.mp4" || f.Path != "" {
		t.Errorf("unexpected file %+v", f)
	}

	h := newHarness(t)
	err := h.ctrl.SelectFile(f)
	if !errors.Is(err, selector.ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}
