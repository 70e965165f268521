package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"investiflow/api/internal/ordering"
	"investiflow/api/internal/store"
)

func TestCreateProjectRequiresName(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/projects", bytes.NewBufferString(`{"name":"  "}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProjectIndexesForSearch(t *testing.T) {
	svc, deps := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/projects", bytes.NewBufferString(`{"name":"Thesis","status":"in_progress"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(deps.search.indexedProjects) != 1 {
		t.Fatalf("expected one indexed project, got %d", len(deps.search.indexedProjects))
	}
	record := deps.search.indexedProjects[0]
	if record.OwnerID != "user-1" || record.Name != "Thesis" {
		t.Fatalf("unexpected indexed record: %+v", record)
	}
}

func TestCreateProjectRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/projects", bytes.NewBufferString(`{"name":"Thesis","status":"done"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestForeignProjectReadsAsNotFound(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return store.Project{ID: "prj-2", OwnerID: "someone-else", Name: "Hidden"}, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodGet, "/api/projects/prj-2", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("ownership failure must read as NOT_FOUND, got %v", payload["code"])
	}
}

func TestCreatePhasePassesRequestedPosition(t *testing.T) {
	var gotPosition *int
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
		insertPhaseFn: func(_ context.Context, phase store.Phase, position *int) (store.Phase, error) {
			gotPosition = position
			phase.Position = *position
			return phase, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/projects/prj-1/phases", bytes.NewBufferString(`{"name":"Fieldwork","position":1}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if gotPosition == nil || *gotPosition != 1 {
		t.Fatalf("expected requested position 1 to reach the store, got %v", gotPosition)
	}
}

func TestCreatePhaseRejectsNegativePosition(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/projects/prj-1/phases", bytes.NewBufferString(`{"name":"Fieldwork","position":-1}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReorderPhasesRejectsDuplicatePosition(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"orders":[{"id":"a","position":0},{"id":"b","position":0}]}`
	req := authedRequest(t, http.MethodPut, "/api/projects/prj-1/phases/reorder", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "DUPLICATE_ORDER" {
		t.Fatalf("expected code DUPLICATE_ORDER, got %v", payload["code"])
	}
}

func TestReorderPhasesMapsUnknownItemToValidation(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
		reorderPhasesFn: func(context.Context, string, []ordering.Item) error {
			return ordering.ErrUnknownItem
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"orders":[{"id":"stranger","position":0}]}`
	req := authedRequest(t, http.MethodPut, "/api/projects/prj-1/phases/reorder", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMoveTaskResolvesDestinationPhase(t *testing.T) {
	var gotUpdate store.TaskUpdate
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
		getPhaseFn: func(_ context.Context, id string) (store.Phase, error) {
			return store.Phase{ID: id, ProjectID: "prj-1", Name: "Phase"}, nil
		},
		getTaskFn: func(_ context.Context, id string) (store.Task, error) {
			return store.Task{ID: id, PhaseID: "phs-1", Title: "Interview", Status: "pending"}, nil
		},
		updateTaskFn: func(_ context.Context, taskID string, update store.TaskUpdate) (store.Task, error) {
			gotUpdate = update
			return store.Task{ID: taskID, PhaseID: *update.PhaseID, Position: 0}, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, http.MethodPost, "/api/tasks/tsk-1/move", bytes.NewBufferString(`{"phaseId":"phs-2"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if gotUpdate.PhaseID == nil || *gotUpdate.PhaseID != "phs-2" {
		t.Fatalf("expected move to phs-2, got %+v", gotUpdate)
	}
	if gotUpdate.Position != nil {
		t.Fatalf("expected nil position so the move appends, got %d", *gotUpdate.Position)
	}
}

func TestUpdateTaskRejectsEndBeforeStart(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, id string) (store.Project, error) {
			return ownedProject(id), nil
		},
		getPhaseFn: func(_ context.Context, id string) (store.Phase, error) {
			return store.Phase{ID: id, ProjectID: "prj-1"}, nil
		},
		getTaskFn: func(_ context.Context, id string) (store.Task, error) {
			return store.Task{ID: id, PhaseID: "phs-1", Title: "Interview", Status: "pending"}, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"startDate":"2026-09-10","endDate":"2026-09-01"}`
	req := authedRequest(t, http.MethodPatch, "/api/tasks/tsk-1", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}
