package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateClient inserts a client row.
func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	active := 0
	if c.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients(id, name, email, active, activated_at, deleted_at, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.Email, active, fmtNullTime(c.ActivatedAt), fmtNullTime(c.DeletedAt), fmtTime(c.CreatedAt))
	return err
}

// GetClient fetches one client by id.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	var (
		c           Client
		active      int
		activatedAt sql.NullString
		deletedAt   sql.NullString
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, active, activated_at, deleted_at, created_at FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &active, &activatedAt, &deletedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.ActivatedAt = parseNullTime(activatedAt)
	c.DeletedAt = parseNullTime(deletedAt)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// SoftDeleteClient stamps deleted_at; the retention sweep cascades later.
func (s *Store) SoftDeleteClient(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET deleted_at=?, active=0 WHERE id=? AND deleted_at IS NULL`, fmtTime(at), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateProject inserts a project row (test/seed helper).
func (s *Store) CreateProject(ctx context.Context, id, clientID, name string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects(id, client_id, name, created_at) VALUES(?,?,?,?)`,
		id, clientID, name, fmtTime(time.Now()))
	return id, err
}

// CreateContract inserts a contract tied to a project.
func (s *Store) CreateContract(ctx context.Context, c *Contract) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contracts(id, project_id, client_id, sent_at, signed_at, created_at)
		 VALUES(?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.ClientID, fmtNullTime(c.SentAt), fmtNullTime(c.SignedAt), fmtTime(c.CreatedAt))
	return err
}

// GetContract fetches one contract by id.
func (s *Store) GetContract(ctx context.Context, id string) (*Contract, error) {
	var (
		c         Contract
		sentAt    sql.NullString
		signedAt  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, client_id, sent_at, signed_at, created_at FROM contracts WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.ClientID, &sentAt, &signedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.SentAt = parseNullTime(sentAt)
	c.SignedAt = parseNullTime(signedAt)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// SignContract stamps signed_at. Pending signature reminders are suppressed
// by the due-query join; callers typically also cancel the series.
func (s *Store) SignContract(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET signed_at=? WHERE id=? AND signed_at IS NULL`, fmtTime(at), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CreateTask inserts a task row.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, project_id, title, due_date, priority, done_at, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, fmtNullTime(t.DueDate), t.Priority, fmtNullTime(t.DoneAt), fmtTime(t.CreatedAt))
	return err
}

// OpenTasksWithDueDate lists unfinished, undeleted tasks that have a deadline.
// Used by the priority escalation job.
func (s *Store) OpenTasksWithDueDate(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, due_date, priority, done_at, created_at
		 FROM tasks
		 WHERE done_at IS NULL AND deleted_at IS NULL AND due_date IS NOT NULL
		 ORDER BY due_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var (
			t         Task
			dueDate   sql.NullString
			doneAt    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &dueDate, &t.Priority, &doneAt, &createdAt); err != nil {
			return nil, err
		}
		t.DueDate = parseNullTime(dueDate)
		t.DoneAt = parseNullTime(doneAt)
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTaskPriority writes a new priority only when it actually changed, so
// re-evaluation on every pass stays a no-op for settled tasks.
func (s *Store) SetTaskPriority(ctx context.Context, id, priority string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET priority=? WHERE id=? AND priority != ? AND done_at IS NULL`,
		priority, id, priority)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
