package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AVA-Chain/internal/agent/taskmanager"
	xerrors "AVA-Chain/internal/errors"
	"AVA-Chain/internal/task"
)

// Server 负责暴露 REST 接口，供外部创建任务并驱动智能体协作。
type Server struct {
	addr    string
	manager *taskmanager.TaskManager
	repo    task.Repository
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, manager *taskmanager.TaskManager, repo task.Repository) *Server {
	return &Server{addr: addr, manager: manager, repo: repo}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tasks", s.handleTasks)
	mux.HandleFunc("/api/v1/tasks/", s.handleTaskSubroutes)
	mux.HandleFunc("/api/v1/analysis", s.handleAnalysis)
	return mux
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

type createTaskRequest struct {
	Description string `json:"description"`
	AssignTo    string `json:"assign_to,omitempty"`
}

// handleCreateTask 创建任务，可选地立即派发给指定智能体。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		http.Error(w, "任务管理器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	created, err := s.manager.CreateTask(ctx, req.Description)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	if req.AssignTo != "" {
		if err := s.manager.AssignTask(ctx, created.ID, req.AssignTo); err != nil {
			http.Error(w, err.Error(), statusForError(err))
			return
		}
		created, err = s.repo.Get(ctx, created.ID)
		if err != nil {
			http.Error(w, err.Error(), statusForError(err))
			return
		}
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleListTasks 返回最近的任务。
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		http.Error(w, "任务存储未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := task.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts.Limit = parsed
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Statuses = []task.Status{task.Status(status)}
	}
	if assigned := r.URL.Query().Get("assigned_to"); assigned != "" {
		opts.AssignedTo = assigned
	}

	tasks, err := s.repo.List(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskSubroutes 分发 /api/v1/tasks/{id} 与 /api/v1/tasks/{id}/assign。
func (s *Server) handleTaskSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if rest == "" {
		http.Error(w, "缺少任务 ID", http.StatusBadRequest)
		return
	}

	if id, found := strings.CutSuffix(rest, "/assign"); found {
		s.handleAssignTask(w, r, id)
		return
	}
	s.handleTaskDetail(w, r, rest)
}

// handleTaskDetail 返回单条任务。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.repo == nil {
		http.Error(w, "任务存储未初始化", http.StatusServiceUnavailable)
		return
	}
	if strings.TrimSpace(id) == "" {
		http.Error(w, "缺少任务 ID", http.StatusBadRequest)
		return
	}

	found, err := s.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

type assignTaskRequest struct {
	Agent string `json:"agent"`
}

// handleAssignTask 把任务派发给指定智能体。
func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.manager == nil {
		http.Error(w, "任务管理器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req assignTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.manager.AssignTask(ctx, id, req.Agent); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	assigned, err := s.repo.Get(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, assigned)
}

type analysisRequest struct {
	Analysis string `json:"analysis"`
}

// handleAnalysis 把一段分析文本交给任务管理器转化为任务。
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.manager == nil {
		http.Error(w, "任务管理器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.manager.ProcessAnalysis(r.Context(), req.Analysis)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func statusForError(err error) int {
	switch xerrors.CodeOf(err) {
	case task.CodeTaskNotFound:
		return http.StatusNotFound
	case task.CodeTaskConflict:
		return http.StatusConflict
	case task.CodeTaskValidation, taskmanager.CodeRoutingFailure, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
