package artifacthandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain"
	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/domain/project"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/artifacthandler"
)

// MockProjectRepository is a func-field mock of project.Repository.
type MockProjectRepository struct {
	CreateFunc         func(ctx context.Context, p *project.Project) error
	FindByPublicIDFunc func(ctx context.Context, publicID string) (*project.Project, error)
	ListByUserFunc     func(ctx context.Context, userID string) ([]*project.Project, error)
}

func (m *MockProjectRepository) Create(ctx context.Context, p *project.Project) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil
}

func (m *MockProjectRepository) FindByPublicID(ctx context.Context, publicID string) (*project.Project, error) {
	if m.FindByPublicIDFunc != nil {
		return m.FindByPublicIDFunc(ctx, publicID)
	}
	return nil, nil
}

func (m *MockProjectRepository) ListByUser(ctx context.Context, userID string) ([]*project.Project, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

// memoryArtifactRepo backs the real service so the handler tests exercise
// gating and versioning end to end.
type memoryArtifactRepo struct {
	artifacts map[string]*artifact.Artifact
	snapshots []*artifact.VersionSnapshot
}

func newMemoryArtifactRepo() *memoryArtifactRepo {
	return &memoryArtifactRepo{artifacts: make(map[string]*artifact.Artifact)}
}

func (m *memoryArtifactRepo) key(projectID string, stage artifact.Stage) string {
	return projectID + "/" + string(stage)
}

func (m *memoryArtifactRepo) Upsert(_ context.Context, a *artifact.Artifact) error {
	copied := *a
	m.artifacts[m.key(a.ProjectID, a.Type)] = &copied
	return nil
}

func (m *memoryArtifactRepo) FindByProjectAndType(_ context.Context, projectID string, stage artifact.Stage) (*artifact.Artifact, error) {
	a, ok := m.artifacts[m.key(projectID, stage)]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *memoryArtifactRepo) ListByProject(_ context.Context, projectID string) ([]*artifact.Artifact, error) {
	var out []*artifact.Artifact
	for _, stage := range artifact.StageOrder {
		if a, ok := m.artifacts[m.key(projectID, stage)]; ok {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memoryArtifactRepo) Update(_ context.Context, a *artifact.Artifact) error {
	copied := *a
	m.artifacts[m.key(a.ProjectID, a.Type)] = &copied
	return nil
}

func (m *memoryArtifactRepo) CreateSnapshot(_ context.Context, s *artifact.VersionSnapshot) error {
	copied := *s
	m.snapshots = append(m.snapshots, &copied)
	return nil
}

func (m *memoryArtifactRepo) ListSnapshots(_ context.Context, artifactID string) ([]*artifact.VersionSnapshot, error) {
	var out []*artifact.VersionSnapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].ArtifactID == artifactID {
			out = append(out, m.snapshots[i])
		}
	}
	return out, nil
}

func (m *memoryArtifactRepo) FindSnapshot(_ context.Context, artifactID string, version int) (*artifact.VersionSnapshot, error) {
	for _, s := range m.snapshots {
		if s.ArtifactID == artifactID && s.Version == version {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func ownedProject() *MockProjectRepository {
	return &MockProjectRepository{
		FindByPublicIDFunc: func(_ context.Context, publicID string) (*project.Project, error) {
			return &project.Project{PublicID: publicID, UserID: "user_1", Name: "Acme"}, nil
		},
	}
}

func setupRouter(handler *artifacthandler.Handler, authed bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authed {
		r.Use(func(c *gin.Context) {
			c.Set("principal", domain.Principal{ID: "user_1", Username: "founder"})
		})
	}

	group := r.Group("/v1/projects/:project_id/artifacts")
	{
		group.GET("", handler.List)
		group.POST("", handler.Generate)
		group.POST("/:stage/approve", handler.Approve)
		group.PUT("/:stage", handler.Edit)
		group.POST("/:stage/restore", handler.Restore)
		group.GET("/:stage/versions", handler.Versions)
	}
	return r
}

func newHandler(projects project.Repository) (*artifacthandler.Handler, *memoryArtifactRepo) {
	repo := newMemoryArtifactRepo()
	svc := artifact.NewService(repo, nil, zerolog.Nop())
	return artifacthandler.NewHandler(svc, projects, zerolog.Nop()), repo
}

func postJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	req, _ := http.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func generateBody(stage artifact.Stage) artifacthandler.GenerateRequest {
	return artifacthandler.GenerateRequest{
		Type:    string(stage),
		Title:   "Discovery",
		Content: "Content long enough to pass the minimum length check.",
	}
}

func TestGenerateStoresDraft(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, true)

	w := postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts", generateBody(artifact.StageDiscoveryReport))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var created artifact.Artifact
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.Status != artifact.StatusDraft {
		t.Errorf("Expected draft status, got %v", created.Status)
	}
	if created.Version != 1 {
		t.Errorf("Expected version 1, got %d", created.Version)
	}
}

func TestGenerateOutOfOrderIsConflict(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, true)

	w := postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts", generateBody(artifact.StageMarketAnalysis))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestApproveThenEditResetsToDraft(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, true)

	if w := postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts", generateBody(artifact.StageDiscoveryReport)); w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d %s", w.Code, w.Body.String())
	}

	req, _ := http.NewRequest("POST", "/v1/projects/proj_1/artifacts/discovery_report/approve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Approve failed: %d %s", w.Code, w.Body.String())
	}

	var approved artifact.Artifact
	if err := json.Unmarshal(w.Body.Bytes(), &approved); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if approved.Status != artifact.StatusApproved {
		t.Errorf("Expected approved status, got %v", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "user_1" {
		t.Errorf("Expected approved_by user_1, got %v", approved.ApprovedBy)
	}

	w = postJSON(t, router, "PUT", "/v1/projects/proj_1/artifacts/discovery_report", artifacthandler.EditRequest{
		Content: "A founder-edited discovery report body with enough length.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Edit failed: %d %s", w.Code, w.Body.String())
	}

	var edited artifact.Artifact
	if err := json.Unmarshal(w.Body.Bytes(), &edited); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if edited.Status != artifact.StatusDraft {
		t.Errorf("Expected edit to reset status to draft, got %v", edited.Status)
	}
	if edited.Version != 2 {
		t.Errorf("Expected version 2 after edit, got %d", edited.Version)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, true)

	original := generateBody(artifact.StageDiscoveryReport)
	if w := postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts", original); w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d %s", w.Code, w.Body.String())
	}
	w := postJSON(t, router, "PUT", "/v1/projects/proj_1/artifacts/discovery_report", artifacthandler.EditRequest{
		Content: "A replacement body for the discovery report, long enough.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Edit failed: %d %s", w.Code, w.Body.String())
	}

	w = postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts/discovery_report/restore",
		artifacthandler.RestoreRequest{Version: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("Restore failed: %d %s", w.Code, w.Body.String())
	}

	var restored artifact.Artifact
	if err := json.Unmarshal(w.Body.Bytes(), &restored); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if restored.Content != original.Content {
		t.Errorf("Expected restored content to match version 1")
	}

	req, _ := http.NewRequest("GET", "/v1/projects/proj_1/artifacts/discovery_report/versions", nil)
	vw := httptest.NewRecorder()
	router.ServeHTTP(vw, req)
	if vw.Code != http.StatusOK {
		t.Fatalf("Versions failed: %d %s", vw.Code, vw.Body.String())
	}
	var payload struct {
		Versions []artifact.VersionSnapshot `json:"versions"`
	}
	if err := json.Unmarshal(vw.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(payload.Versions) != 2 {
		t.Errorf("Expected 2 snapshots, got %d", len(payload.Versions))
	}
}

func TestListRequiresAuthentication(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, false)

	req, _ := http.NewRequest("GET", "/v1/projects/proj_1/artifacts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestListUnknownProjectIsNotFound(t *testing.T) {
	handler, _ := newHandler(&MockProjectRepository{})
	router := setupRouter(handler, true)

	req, _ := http.NewRequest("GET", "/v1/projects/proj_missing/artifacts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListForeignProjectIsForbidden(t *testing.T) {
	handler, _ := newHandler(&MockProjectRepository{
		FindByPublicIDFunc: func(_ context.Context, publicID string) (*project.Project, error) {
			return &project.Project{PublicID: publicID, UserID: "someone_else"}, nil
		},
	})
	router := setupRouter(handler, true)

	req, _ := http.NewRequest("GET", "/v1/projects/proj_1/artifacts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestGenerateRejectsUnknownStage(t *testing.T) {
	handler, _ := newHandler(ownedProject())
	router := setupRouter(handler, true)

	body := artifacthandler.GenerateRequest{
		Type:    "executive_summary",
		Content: strings.Repeat("a", 40),
	}
	w := postJSON(t, router, "POST", "/v1/projects/proj_1/artifacts", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
