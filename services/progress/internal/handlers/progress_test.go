package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/progress/internal/store"
	"github.com/example/course-platform/services/progress/internal/worker"
)

// setupReq builds a request with chi URL params and optional user id in context.
func setupReq(method, url string, body string, params map[string]string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

type fakeEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeEvents) PublishAsync(subj string, _ []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subj)
	return nil, nil
}

type fakeWrites struct {
	subj string
	body []byte
	err  error
}

func (f *fakeWrites) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subj, f.body = subj, data
	return &nats.PubAck{Stream: "PROGRESS_WRITES"}, nil
}

func decodeRecord(t *testing.T, rr *httptest.ResponseRecorder) progress.Record {
	t.Helper()
	var resp recordResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Progress
}

func TestGetProgress_CreatesOnFirstAccess(t *testing.T) {
	repo := store.NewMemoryRepository()
	handler := GetProgress(Deps{Repo: repo})

	req := setupReq(http.MethodGet, "/progress/course-1", "", map[string]string{"courseId": "course-1"}, "learner-a")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rec := decodeRecord(t, rr)
	if rec.CourseID != "course-1" || rec.Status != progress.StatusNotStarted {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestGetProgress_Unauthorized(t *testing.T) {
	handler := GetProgress(Deps{Repo: store.NewMemoryRepository()})

	req := setupReq(http.MethodGet, "/progress/course-1", "", map[string]string{"courseId": "course-1"}, "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestGetProgress_InvalidCourseID(t *testing.T) {
	handler := GetProgress(Deps{Repo: store.NewMemoryRepository()})

	req := setupReq(http.MethodGet, "/progress/", "", map[string]string{"courseId": ""}, "learner-a")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPutProgress_MergesAndPublishes(t *testing.T) {
	repo := store.NewMemoryRepository()
	ev := &fakeEvents{}
	handler := PutProgress(Deps{Repo: repo, Events: analytics.New(ev, nil)})

	body := `{"status":"in-progress","currentVideoTime":30,"totalHoursSpent":0.1,"progress":25,"videoProgress":{"v1":{"currentTime":30}}}`
	req := setupReq(http.MethodPut, "/progress/course-1", body, map[string]string{"courseId": "course-1"}, "learner-a")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rec := decodeRecord(t, rr)
	if rec.Progress != 25 || rec.VideoProgress["v1"].CurrentTime != 30 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(ev.subjects) != 1 || ev.subjects[0] != analytics.SubjectProgressUpdated {
		t.Fatalf("expected one progress_updated event, got %v", ev.subjects)
	}
}

func TestPutProgress_CompletionEvent(t *testing.T) {
	repo := store.NewMemoryRepository()
	ev := &fakeEvents{}
	handler := PutProgress(Deps{Repo: repo, Events: analytics.New(ev, nil)})

	body := `{"status":"completed","progress":100}`
	for i := 0; i < 2; i++ {
		req := setupReq(http.MethodPut, "/progress/course-1", body, map[string]string{"courseId": "course-1"}, "learner-a")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}

	completed := 0
	for _, s := range ev.subjects {
		if s == analytics.SubjectCourseCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("expected exactly one course_completed event, got %d (%v)", completed, ev.subjects)
	}
}

func TestPutProgress_DoesNotRegress(t *testing.T) {
	repo := store.NewMemoryRepository()
	handler := PutProgress(Deps{Repo: repo})

	for _, body := range []string{
		`{"progress":80,"videoProgress":{"v1":{"currentTime":300}}}`,
		`{"progress":10,"videoProgress":{"v1":{"currentTime":5}}}`,
	} {
		req := setupReq(http.MethodPut, "/progress/course-1", body, map[string]string{"courseId": "course-1"}, "learner-a")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got, err := repo.GetOrCreate(context.Background(), "learner-a", "course-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 80 || got.VideoProgress["v1"].CurrentTime != 300 {
		t.Fatalf("stored progress regressed: %+v", got)
	}
}

func TestPutProgress_Validation(t *testing.T) {
	handler := PutProgress(Deps{Repo: store.NewMemoryRepository()})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"course mismatch", `{"courseId":"other"}`},
		{"bad status", `{"status":"paused"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := setupReq(http.MethodPut, "/progress/course-1", tc.body, map[string]string{"courseId": "course-1"}, "learner-a")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPutProgress_AsyncAccepted(t *testing.T) {
	repo := store.NewMemoryRepository()
	js := &fakeWrites{}
	handler := PutProgress(Deps{Repo: repo, Writes: NewWritePublisher(js, true)})

	req := setupReq(http.MethodPut, "/progress/course-1", `{"progress":40}`, map[string]string{"courseId": "course-1"}, "learner-a")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	eventID := rr.Header().Get("X-Event-ID")
	if eventID == "" {
		t.Fatal("expected X-Event-ID header")
	}
	if js.subj != worker.Subject {
		t.Fatalf("expected publish on %s, got %q", worker.Subject, js.subj)
	}
	var ev worker.WriteEvent
	if err := json.Unmarshal(js.body, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.EventID != eventID || ev.UserID != "learner-a" || ev.Record.Progress != 40 {
		t.Fatalf("unexpected event %+v", ev)
	}

	got, _ := repo.GetOrCreate(context.Background(), "learner-a", "course-1")
	if got.Progress != 0 {
		t.Fatal("async write must not touch the store synchronously")
	}
}

func TestPutProgress_AsyncPublishFailure(t *testing.T) {
	js := &fakeWrites{err: errors.New("no responders")}
	handler := PutProgress(Deps{Repo: store.NewMemoryRepository(), Writes: NewWritePublisher(js, true)})

	req := setupReq(http.MethodPut, "/progress/course-1", `{"progress":40}`, map[string]string{"courseId": "course-1"}, "learner-a")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestListProgress(t *testing.T) {
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	for _, c := range []string{"course-1", "course-2"} {
		if _, err := repo.GetOrCreate(ctx, "learner-a", c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.GetOrCreate(ctx, "learner-b", "course-3"); err != nil {
		t.Fatal(err)
	}

	req := setupReq(http.MethodGet, "/progress?limit=10", "", nil, "learner-a")
	rr := httptest.NewRecorder()
	ListProgress(Deps{Repo: repo}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp listResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Progress) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Progress))
	}
}

func TestListProgress_EmptyIsArray(t *testing.T) {
	req := setupReq(http.MethodGet, "/progress", "", nil, "learner-a")
	rr := httptest.NewRecorder()
	ListProgress(Deps{Repo: store.NewMemoryRepository()}).ServeHTTP(rr, req)

	if got := rr.Body.String(); got != "{\"progress\":[]}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}
