package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AVA-Chain/internal/errors"
)

// MySQLRepository 使用 MySQL 持久化任务。
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository 创建 MySQLRepository 并初始化表结构。
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	repo := &MySQLRepository{db: db}
	if err := repo.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *MySQLRepository) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS tasks (
        id VARCHAR(64) PRIMARY KEY,
        description TEXT NOT NULL,
        status VARCHAR(32) NOT NULL,
        assigned_to VARCHAR(64) DEFAULT '',
        result MEDIUMTEXT,
        license_id VARCHAR(64) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_tasks_status (status),
        INDEX idx_tasks_assigned (assigned_to),
        INDEX idx_tasks_updated (updated_at)
)`

	if _, err := r.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 tasks 表失败")
	}
	return nil
}

// Create 插入新的任务记录。
func (r *MySQLRepository) Create(ctx context.Context, t *Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(t.ID) == "" {
		return xerrors.New(CodeTaskValidation, "任务 ID 不能为空")
	}
	if !IsValidStatus(t.Status) {
		return xerrors.New(CodeTaskValidation, "任务状态不合法")
	}

	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	const stmt = `INSERT INTO tasks
        (id, description, status, assigned_to, result, license_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, stmt,
		t.ID,
		t.Description,
		t.Status,
		t.AssignedTo,
		t.Result,
		t.LicenseID,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// Get 查询指定任务。
func (r *MySQLRepository) Get(ctx context.Context, id string) (*Task, error) {
	const stmt = `SELECT id, description, status, assigned_to, COALESCE(result, ''), license_id, created_at, updated_at
        FROM tasks WHERE id = ?`

	row := r.db.QueryRowContext(ctx, stmt, id)

	var t Task
	if err := row.Scan(
		&t.ID,
		&t.Description,
		&t.Status,
		&t.AssignedTo,
		&t.Result,
		&t.LicenseID,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return &t, nil
}

// Update 覆盖一条已存在的任务。
func (r *MySQLRepository) Update(ctx context.Context, t *Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if !IsValidStatus(t.Status) {
		return xerrors.New(CodeTaskValidation, "任务状态不合法")
	}

	const stmt = `UPDATE tasks SET description = ?, status = ?, assigned_to = ?, result = ?, license_id = ?, updated_at = ?
        WHERE id = ?`

	t.UpdatedAt = time.Now().Unix()
	res, err := r.db.ExecContext(ctx, stmt,
		t.Description,
		t.Status,
		t.AssignedTo,
		t.Result,
		t.LicenseID,
		t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete 删除指定任务。
func (r *MySQLRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除任务失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回符合过滤条件的任务。
func (r *MySQLRepository) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT id, description, status, assigned_to, COALESCE(result, ''), license_id, created_at, updated_at FROM tasks`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID,
			&t.Description,
			&t.Status,
			&t.AssignedTo,
			&t.Result,
			&t.LicenseID,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		clone := t
		tasks = append(tasks, &clone)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Close 关闭底层数据库连接。
func (r *MySQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, string(status))
		}
	}
	if opts.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, opts.AssignedTo)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR description LIKE ? OR result LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Repository = (*MySQLRepository)(nil)
