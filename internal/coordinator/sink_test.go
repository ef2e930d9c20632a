package coordinator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSinkFinalize(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	wrote, err := sink.Finalize(http.StatusRequestTimeout, map[string]string{"Content-Type": "application/json"}, []byte(`{"error":{}}`))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !wrote {
		t.Fatal("Finalize on a fresh sink must write")
	}
	if rec.Code != http.StatusRequestTimeout {
		t.Errorf("expected status 408, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"error":{}}` {
		t.Errorf("unexpected body %q", got)
	}
	if !sink.Ended() {
		t.Error("Finalize must end the response")
	}

	// The response is terminal; nothing else may reach the wire.
	if err := sink.WriteChunk([]byte("late")); err == nil {
		t.Error("WriteChunk after Finalize must fail")
	}
	if wrote, _ := sink.Finalize(http.StatusOK, nil, []byte("again")); wrote {
		t.Error("second Finalize must refuse")
	}
	if strings.Contains(rec.Body.String(), "late") || strings.Contains(rec.Body.String(), "again") {
		t.Errorf("terminal body mutated: %q", rec.Body.String())
	}
}

func TestHTTPSinkFinalizeRefusedAfterHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	sink.WriteHeader(http.StatusOK, map[string]string{"Content-Type": "text/event-stream"})
	if err := sink.WriteChunk([]byte("data: {}\n\n")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	wrote, err := sink.Finalize(http.StatusRequestTimeout, nil, []byte(`{"error":{}}`))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if wrote {
		t.Error("Finalize must refuse once headers went out")
	}
	if strings.Contains(rec.Body.String(), "error") {
		t.Errorf("refused Finalize still wrote: %q", rec.Body.String())
	}
	if rec.Code != http.StatusOK {
		t.Errorf("refused Finalize changed status to %d", rec.Code)
	}
}

func TestHTTPSinkEndStream(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	sink.WriteHeader(http.StatusOK, nil)
	if err := sink.WriteChunk([]byte("data: {}\n\n")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	wrote, err := sink.EndStream([]byte("data: [DONE]\n\n"))
	if err != nil {
		t.Fatalf("EndStream: %v", err)
	}
	if !wrote {
		t.Fatal("EndStream on a live response must write")
	}
	if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
		t.Errorf("terminator missing from body: %q", rec.Body.String())
	}
	if !sink.Ended() {
		t.Error("EndStream must end the response")
	}

	if wrote, _ := sink.EndStream([]byte("data: [DONE]\n\n")); wrote {
		t.Error("second EndStream must refuse")
	}
}
