package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"squeeze/internal/api"
	"squeeze/internal/queue"
)

type queueReaderStub struct {
	items    []*queue.Item
	results  []*queue.QualityResult
	failures []*queue.FailureRecord
}

func (s *queueReaderStub) List(context.Context, ...queue.Status) ([]*queue.Item, error) {
	return s.items, nil
}

func (s *queueReaderStub) Stats(context.Context) (map[queue.Status]int, error) {
	return map[queue.Status]int{queue.StatusNeedsAnalysis: len(s.items)}, nil
}

func (s *queueReaderStub) ItemByID(_ context.Context, id int64) (*queue.Item, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, nil
}

func (s *queueReaderStub) ResultsForItem(context.Context, int64) ([]*queue.QualityResult, error) {
	return s.results, nil
}

func (s *queueReaderStub) UnresolvedFailures(context.Context) ([]*queue.FailureRecord, error) {
	return s.failures, nil
}

func (s *queueReaderStub) FailuresForItem(context.Context, int64) ([]*queue.FailureRecord, error) {
	return s.failures, nil
}

func (s *queueReaderStub) FailureByID(context.Context, int64) (*queue.FailureRecord, error) {
	if len(s.failures) == 0 {
		return nil, nil
	}
	return s.failures[0], nil
}

func TestAPIServerHandleQueue(t *testing.T) {
	stub := &queueReaderStub{items: []*queue.Item{{
		ID:          1,
		DisplayName: "Example",
		Status:      queue.StatusNeedsAnalysis,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}}}
	srv := &apiServer{queueSvc: api.NewQueueService(stub)}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].DisplayName != "Example" {
		t.Fatalf("unexpected display name: %q", resp.Items[0].DisplayName)
	}
}

func TestAPIServerHandleQueueRejectsPost(t *testing.T) {
	srv := &apiServer{queueSvc: api.NewQueueService(&queueReaderStub{})}
	w := httptest.NewRecorder()
	srv.handleQueue(w, httptest.NewRequest(http.MethodPost, "/api/queue", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIServerHandleQueueItem(t *testing.T) {
	stub := &queueReaderStub{
		items:   []*queue.Item{{ID: 42, DisplayName: "Ran", Status: queue.StatusAnalyzed}},
		results: []*queue.QualityResult{{ItemID: 42, CRF: 24, Chosen: true}},
	}
	srv := &apiServer{queueSvc: api.NewQueueService(stub)}

	w := httptest.NewRecorder()
	srv.handleQueueItem(w, httptest.NewRequest(http.MethodGet, "/api/queue/42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.QueueItemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Item.ID != 42 || len(resp.Results) != 1 || !resp.Results[0].Chosen {
		t.Fatalf("unexpected payload %+v", resp)
	}

	w = httptest.NewRecorder()
	srv.handleQueueItem(w, httptest.NewRequest(http.MethodGet, "/api/queue/99", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.handleQueueItem(w, httptest.NewRequest(http.MethodGet, "/api/queue/abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestAPIServerHandleFailures(t *testing.T) {
	stub := &queueReaderStub{failures: []*queue.FailureRecord{{
		ID:       3,
		ItemID:   42,
		Stage:    "encoding",
		Category: queue.FailureTimeout,
		Message:  "encode timed out",
	}}}
	srv := &apiServer{queueSvc: api.NewQueueService(stub)}

	w := httptest.NewRecorder()
	srv.handleFailures(w, httptest.NewRequest(http.MethodGet, "/api/failures", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.FailureListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Category != "timeout" {
		t.Fatalf("unexpected payload %+v", resp)
	}

	w = httptest.NewRecorder()
	srv.handleFailures(w, httptest.NewRequest(http.MethodGet, "/api/failures?item=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad item filter, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	open := authMiddleware("", handler)
	w := httptest.NewRecorder()
	open(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("empty token should pass through, got %d", w.Code)
	}

	guarded := authMiddleware("sekrit", handler)

	w = httptest.NewRecorder()
	guarded(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header should 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	guarded(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token should 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	guarded(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("correct token should pass, got %d", w.Code)
	}
}
