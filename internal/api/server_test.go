package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/agent/taskmanager"
	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/task"
)

func newTestServer() (*Server, task.Repository) {
	repo := task.NewMemoryRepository()
	manager := taskmanager.New(agent.Capabilities{Bus: bus.New()}, repo, nil)
	return NewServer(":0", manager, repo), repo
}

func seedTask(t *testing.T, repo task.Repository, id string, status task.Status) {
	t.Helper()
	sample := &task.Task{
		ID:          id,
		Description: "demo",
		Status:      status,
	}
	if err := repo.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample task: %v", err)
	}
}

func TestHandleCreateTask(t *testing.T) {
	server, repo := newTestServer()

	body := strings.NewReader(`{"description":"watch ETH gas prices"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body)
	rec := httptest.NewRecorder()

	server.handleTasks(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusCreated)
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != task.StatusPending {
		t.Fatalf("unexpected task status: %s", got.Status)
	}
	if _, err := repo.Get(context.Background(), got.ID); err != nil {
		t.Fatalf("task not persisted: %v", err)
	}
}

func TestHandleCreateTaskValidation(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"description":"  "}`))
	rec := httptest.NewRecorder()

	server.handleTasks(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleListTasksFilters(t *testing.T) {
	server, repo := newTestServer()
	seedTask(t, repo, "task-a", task.StatusPending)
	seedTask(t, repo, "task-b", task.StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=completed", nil)
	rec := httptest.NewRecorder()

	server.handleTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got []*task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "task-b" {
		t.Fatalf("unexpected list result: %+v", got)
	}
}

func TestHandleTaskDetail(t *testing.T) {
	server, repo := newTestServer()
	seedTask(t, repo, "task-detail", task.StatusPending)

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/task-detail", nil)
		rec := httptest.NewRecorder()

		server.handleTaskSubroutes(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
		}
		var got task.Task
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.ID != "task-detail" {
			t.Fatalf("unexpected task id: %q", got.ID)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/task-detail", nil)
		rec := httptest.NewRecorder()

		server.handleTaskSubroutes(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
		rec := httptest.NewRecorder()

		server.handleTaskSubroutes(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleAssignTask(t *testing.T) {
	server, repo := newTestServer()
	seedTask(t, repo, "task-assign", task.StatusPending)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task-assign/assign",
		strings.NewReader(`{"agent":"observer"}`))
	rec := httptest.NewRecorder()

	server.handleTaskSubroutes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AssignedTo != agent.NameObserver || got.Status != task.StatusInProgress {
		t.Fatalf("unexpected task state: %+v", got)
	}
}

func TestHandleAssignTaskConflict(t *testing.T) {
	server, repo := newTestServer()
	seedTask(t, repo, "task-done", task.StatusCompleted)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task-done/assign",
		strings.NewReader(`{"agent":"observer"}`))
	rec := httptest.NewRecorder()

	server.handleTaskSubroutes(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestHandleAnalysis(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis",
		strings.NewReader(`{"analysis":"keep an eye on whale wallets"}`))
	rec := httptest.NewRecorder()

	server.handleAnalysis(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status code: got %d want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// 没有在线观察者时任务停在 in_progress，两步流程最终送达执行者。
	if got.AssignedTo != agent.NameExecutor {
		t.Fatalf("expected executor as final assignee, got %q", got.AssignedTo)
	}
}

func TestHandleAnalysisInvalidMethod(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis", nil)
	rec := httptest.NewRecorder()

	server.handleAnalysis(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
