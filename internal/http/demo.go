package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterDemoAPI mounts the bundled processing handlers behind the
// telemetry gateway. The handler bodies are intentionally small; the routes
// exist so the aggregation pipeline has real traffic to observe.
func RegisterDemoAPI(r *Router) {
	r.HandleAPI("/api/text/analyze", handleTextAnalyze)
	r.HandleAPI("/api/text/reverse", handleTextReverse)
	r.HandleAPI("/api/tools/uuid", handleUUID)
}

type textRequest struct {
	Text string `json:"text"`
}

func decodeTextRequest(w http.ResponseWriter, req *http.Request) (textRequest, bool) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return textRequest{}, false
	}
	var payload textRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return textRequest{}, false
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return textRequest{}, false
	}
	return payload, true
}

func handleTextAnalyze(w http.ResponseWriter, req *http.Request) {
	payload, ok := decodeTextRequest(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"characters": len([]rune(payload.Text)),
		"words":      len(strings.Fields(payload.Text)),
		"lines":      strings.Count(payload.Text, "\n") + 1,
	})
}

func handleTextReverse(w http.ResponseWriter, req *http.Request) {
	payload, ok := decodeTextRequest(w, req)
	if !ok {
		return
	}
	runes := []rune(payload.Text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": string(runes)})
}

func handleUUID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":         uuid.NewString(),
		"generated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
