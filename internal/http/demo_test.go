package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleTextAnalyze(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/text/analyze", strings.NewReader(`{"text":"hello world\nsecond line"}`))
	rec := httptest.NewRecorder()
	handleTextAnalyze(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["words"] != float64(4) {
		t.Fatalf("expected 4 words, got %v", payload["words"])
	}
	if payload["lines"] != float64(2) {
		t.Fatalf("expected 2 lines, got %v", payload["lines"])
	}
}

func TestHandleTextAnalyzeRejectsBadInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/text/analyze", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handleTextAnalyze(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/text/analyze", nil)
	rec = httptest.NewRecorder()
	handleTextAnalyze(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestHandleTextReverse(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/text/reverse", strings.NewReader(`{"text":"abc"}`))
	rec := httptest.NewRecorder()
	handleTextReverse(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["text"] != "cba" {
		t.Fatalf("expected cba, got %v", payload["text"])
	}
}

func TestHandleUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/tools/uuid", nil)
	rec := httptest.NewRecorder()
	handleUUID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload["uuid"]) != 36 {
		t.Fatalf("expected uuid string, got %q", payload["uuid"])
	}
}
