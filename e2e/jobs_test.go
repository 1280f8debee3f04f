package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

func validCreateBody() string {
	return `{
		"kind": "import_and_process",
		"sourceUrl": "https://media.example.com/track.mp3",
		"title": "Test Track",
		"artist": "Test Artist"
	}`
}

// The test scheduler runs jobs inline, so a created job is already
// terminal when the create response arrives.
func createJob(t *testing.T, ta *testApp) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validCreateBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	jobID, _ := result["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected 'jobId' in response")
	}
	return jobID
}

func TestJobCreate_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validCreateBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "queued" {
		t.Errorf("expected status 'queued', got %v", result["status"])
	}
}

func TestJobCreate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/jobs/", validCreateBody(), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestJobCreate_InvalidKind(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", `{"kind": "remix"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestJobCreate_MissingSourceURL(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", `{"kind": "import_and_process"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestJobStatus_Completed(t *testing.T) {
	ta := setupApp(t)
	jobID := createJob(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "completed" {
		t.Errorf("expected status 'completed', got %v", result["status"])
	}
	if progress, _ := result["progress"].(float64); progress != 100 {
		t.Errorf("expected progress 100, got %v", result["progress"])
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestJobResult_Completed(t *testing.T) {
	ta := setupApp(t)
	jobID := createJob(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, fmt.Sprintf("/api/jobs/%s/result", jobID), "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["jobId"] != jobID {
		t.Errorf("expected jobId %q, got %v", jobID, result["jobId"])
	}
	if result["artifacts"] == nil {
		t.Error("expected 'artifacts' in result")
	}
}

func TestJobResult_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/no-such-job/result", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestJobCancel_TerminalJobRejected(t *testing.T) {
	ta := setupApp(t)
	jobID := createJob(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", jobID), "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["canceled"] != false {
		t.Errorf("expected canceled false for terminal job, got %v", result["canceled"])
	}
	if result["status"] != "completed" {
		t.Errorf("expected status 'completed', got %v", result["status"])
	}
}

func TestJobCancel_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/no-such-job/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
