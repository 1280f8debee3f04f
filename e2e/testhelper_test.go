package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemforge/api/internal/adapter"
	"github.com/stemforge/api/internal/handler"
	"github.com/stemforge/api/internal/middleware"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/orchestrator"
	"github.com/stemforge/api/internal/store"
	ws "github.com/stemforge/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	orch *orchestrator.Orchestrator
}

// inlineScheduler executes jobs synchronously inside Schedule so a
// create request returns with the job already terminal.
type inlineScheduler struct {
	execute func(ctx context.Context, jobID string) error
}

func (s *inlineScheduler) Schedule(ctx context.Context, jobID string) error {
	return s.execute(ctx, jobID)
}

type stubImporter struct{}

func (stubImporter) Run(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
	onProgress(adapter.ImportProgress{BytesDone: 1, BytesTotal: 1})
	return adapter.ArtifactRef{Path: "/work/source.mp3"}, nil
}

func (stubImporter) Cleanup(ctx context.Context, jobID string) error { return nil }

type stubTransformer struct{}

func (stubTransformer) Run(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
	onProgress(adapter.TransformProgress{Segment: 1, SegmentTotal: 1, ModelIndex: 0, ModelCount: 1})
	return adapter.StemSet{
		model.StemVocals: {Path: "/work/vocals.wav"},
		model.StemDrums:  {Path: "/work/drums.wav"},
	}, nil
}

func (stubTransformer) Cleanup(ctx context.Context, jobID string) error { return nil }

type stubFinalizer struct{}

func (stubFinalizer) Run(ctx context.Context, in adapter.FinalizeInput, onProgress func(adapter.FinalizeProgress)) (*model.FinalArtifactSet, error) {
	onProgress(adapter.FinalizeProgress{StepsDone: 1, StepsTotal: 1})
	return &model.FinalArtifactSet{
		JobID: in.JobID,
		Artifacts: []model.FinalArtifact{
			{Stem: model.StemVocals, Key: "jobs/" + in.JobID + "/vocals.wav", URL: "https://cdn.example.com/vocals.wav"},
		},
	}, nil
}

func (stubFinalizer) Cleanup(ctx context.Context, jobID string) error { return nil }

// setupApp builds a Fiber app wired like main.go but on an in-memory
// store with stub phase adapters, so requests run without Redis or the
// external separation service.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	jobStore := store.NewMemoryStore()
	scheduler := &inlineScheduler{}

	orch := orchestrator.New(jobStore, hub, scheduler, stubImporter{}, stubTransformer{}, stubFinalizer{}, 0)
	scheduler.execute = orch.Execute

	jobsHandler := handler.NewJobsHandler(orch, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"separator": false,
				"r2":        false,
				"metadata":  false,
				"auth":      true,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/jobs")
	jobs.Post("/", jobsHandler.Create)
	jobs.Get("/:jobId", jobsHandler.Status)
	jobs.Post("/:jobId/cancel", jobsHandler.Cancel)
	jobs.Get("/:jobId/result", jobsHandler.Result)

	return &testApp{app: app, orch: orch}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	m := middleware.NewAuthMiddleware(testJWTSecret)
	token, err := m.GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
