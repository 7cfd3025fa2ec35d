package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/routelens/routelens/internal/models"
)

type SQLConfig struct {
	Type       string // "sqlite" or "postgres"
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// SQLStore keeps sessions in a single table. The status CAS is an UPDATE
// guarded by the expected current status; RowsAffected decides who won.
type SQLStore struct {
	conn   *sql.DB
	dbType string
}

func NewSQLStore(config SQLConfig) (*SQLStore, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		// Busy timeout instead of immediate SQLITE_BUSY when workers
		// race on the status CAS.
		conn, err = sql.Open("sqlite3", config.SQLitePath+"?_busy_timeout=5000")
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{conn: conn, dbType: config.Type}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sport_type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		video_reference TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		error_json TEXT,
		result_json TEXT
	);
	`

	_, err := s.conn.Exec(query)
	return err
}

// rebind converts ?-placeholders to the $n form pgx expects. SQLite queries
// pass through unchanged.
func (s *SQLStore) rebind(query string) string {
	if s.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, sess *models.AnalysisSession) error {
	query := s.rebind(`
		INSERT INTO sessions (id, sport_type, status, created_at, video_reference, progress)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.conn.ExecContext(ctx, query,
		sess.ID, string(sess.SportType), string(sess.Status),
		sess.CreatedAt.UTC(), sess.VideoReference, sess.Progress,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	query := s.rebind(`
		SELECT id, sport_type, status, created_at, video_reference, progress, error_json, result_json
		FROM sessions WHERE id = ?`)

	var (
		sess       models.AnalysisSession
		sport      string
		status     string
		createdAt  time.Time
		errorJSON  sql.NullString
		resultJSON sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sport, &status, &createdAt,
		&sess.VideoReference, &sess.Progress, &errorJSON, &resultJSON,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	sess.SportType = models.SportType(sport)
	sess.Status = models.SessionStatus(status)
	sess.CreatedAt = createdAt.UTC()

	if errorJSON.Valid && errorJSON.String != "" {
		var sessErr models.SessionError
		if err := json.Unmarshal([]byte(errorJSON.String), &sessErr); err != nil {
			return nil, fmt.Errorf("decode session error: %w", err)
		}
		sess.Error = &sessErr
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.CompositeResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode session result: %w", err)
		}
		sess.Result = &result
	}
	return &sess, nil
}

func (s *SQLStore) Transition(ctx context.Context, id string, from, to models.SessionStatus, payload TransitionPayload) error {
	if !from.CanTransitionTo(to) {
		return ErrConflict
	}

	var errorJSON, resultJSON sql.NullString
	if payload.Error != nil {
		data, err := json.Marshal(payload.Error)
		if err != nil {
			return fmt.Errorf("encode session error: %w", err)
		}
		errorJSON = sql.NullString{String: string(data), Valid: true}
	}
	if payload.Result != nil {
		data, err := json.Marshal(payload.Result)
		if err != nil {
			return fmt.Errorf("encode session result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := s.rebind(`
		UPDATE sessions
		SET status = ?,
		    error_json = COALESCE(?, error_json),
		    result_json = COALESCE(?, result_json)
		WHERE id = ? AND status = ?`)

	res, err := s.conn.ExecContext(ctx, query, string(to), errorJSON, resultJSON, id, string(from))
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the CAS or the session never existed; tell them apart.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *SQLStore) SetProgress(ctx context.Context, id string, progress int) error {
	query := s.rebind(`UPDATE sessions SET progress = ? WHERE id = ?`)
	_, err := s.conn.ExecContext(ctx, query, progress, id)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.conn.Close()
}
