package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dao/criteria"
)

// Service is a database/sql backed request store. Resolution is a single
// conditional UPDATE so concurrent responders race safely across processes.
type Service struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// Ensure Service implements dao.RequestService
var _ dao.RequestService = (*Service)(nil)

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Service, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store dsn cannot be empty")
	}
	if dialect == DialectSQLite && !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	ret, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ret.owned = true
	return ret, nil
}

// New wraps an existing connection pool and migrates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Service, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, stmt := range []string{schema, statusIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return &Service{db: db, dialect: dialect}, nil
}

// Close releases the connection pool when Open created it.
func (s *Service) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new request.
func (s *Service) Create(ctx context.Context, r *model.Request) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if r.ID == "" || r.FullRequestID == "" {
		return dao.ErrInvalidID
	}
	query := s.dialect.rebind(`INSERT INTO approval_requests (` + columns + `, recipient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.FullRequestID, r.Description, r.Requester, r.RecipientAddress, string(r.Status),
		r.CreatedAt.UnixNano(), r.ExpiresAt.UnixNano(), nullTime(r.RespondedAt), nullString(r.ResponseText),
		model.BareAddress(r.RecipientAddress))
	if err != nil {
		if isUniqueViolation(err) {
			return dao.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert request %s: %w", r.ID, err)
	}
	return nil
}

// Load retrieves a request by its short id.
func (s *Service) Load(ctx context.Context, id string) (*model.Request, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+columns+` FROM approval_requests WHERE id = ?`), id)
	return scanRequest(row)
}

// FindPending returns the request addressed to recipient.
func (s *Service) FindPending(ctx context.Context, id, recipient string) (*model.Request, error) {
	query := s.dialect.rebind(`SELECT ` + columns + ` FROM approval_requests WHERE id = ? AND recipient = ?`)
	row := s.db.QueryRowContext(ctx, query, id, model.BareAddress(recipient))
	return scanRequest(row)
}

// UpdateStatus resolves a pending, unexpired request with a conditional
// UPDATE; when no row changes the current row tells why.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status, responseText string, respondedAt time.Time) error {
	if !status.IsTerminal() {
		return dao.ErrInvalidID
	}
	query := s.dialect.rebind(`UPDATE approval_requests
		SET status = ?, response_text = ?, responded_at = ?
		WHERE id = ? AND status = ? AND expires_at >= ?`)
	at := respondedAt.UnixNano()
	result, err := s.db.ExecContext(ctx, query, string(status), responseText, at, id, string(model.StatusPending), at)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	current, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != model.StatusPending {
		return dao.ErrAlreadyResolved
	}
	return dao.ErrExpired
}

// Delete removes a request; a missing request is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM approval_requests WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	return nil
}

// List returns the matching requests ordered by creation time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error) {
	var where []string
	var args []interface{}
	if values := criteria.Values(dao.ParamStatus, parameters); len(values) > 0 {
		where = append(where, "status IN ("+placeholders(len(values))+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	if values := criteria.Values(dao.ParamRecipient, parameters); len(values) > 0 {
		where = append(where, "recipient IN ("+placeholders(len(values))+")")
		for _, v := range values {
			args = append(args, model.BareAddress(v))
		}
	}
	query := `SELECT ` + columns + ` FROM approval_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()
	var ret []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scanner) (*model.Request, error) {
	var (
		r            model.Request
		status       string
		createdAt    int64
		expiresAt    int64
		respondedAt  sql.NullInt64
		responseText sql.NullString
	)
	err := row.Scan(&r.ID, &r.FullRequestID, &r.Description, &r.Requester, &r.RecipientAddress,
		&status, &createdAt, &expiresAt, &respondedAt, &responseText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dao.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	r.Status = model.Status(status)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.ExpiresAt = time.Unix(0, expiresAt).UTC()
	if respondedAt.Valid {
		at := time.Unix(0, respondedAt.Int64).UTC()
		r.RespondedAt = &at
	}
	if responseText.Valid {
		text := responseText.String
		r.ResponseText = &text
	}
	return &r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
