package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"remindbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.UserStore, domain.StateStore and
// domain.ReminderStore on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id          INTEGER PRIMARY KEY,
		username    TEXT DEFAULT '',
		first_name  TEXT DEFAULT '',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_state (
		user_id     INTEGER PRIMARY KEY REFERENCES users(id),
		stage       TEXT NOT NULL DEFAULT 'idle',
		draft       TEXT NOT NULL DEFAULT '{}',
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reminders (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL REFERENCES users(id),
		message     TEXT NOT NULL,
		remind_at   DATETIME NOT NULL,
		sent        INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(sent, remind_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// EnsureUser upserts a profile, refreshing display fields on repeat contact.
func (s *SQLiteStore) EnsureUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, first_name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, first_name = excluded.first_name`,
		u.ID, u.Username, u.FirstName,
	)
	return err
}

// GetUser returns nil when the user has never been seen.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.FirstName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// State loads the conversation state for a user. A user with no stored row
// reads as idle with an empty draft.
func (s *SQLiteStore) State(ctx context.Context, userID int64) (domain.ConversationState, error) {
	st := domain.ConversationState{UserID: userID, Stage: domain.StageIdle}

	var stage, draftJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT stage, draft FROM conversation_state WHERE user_id = ?`, userID,
	).Scan(&stage, &draftJSON)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	st.Stage = domain.Stage(stage)
	if !st.Stage.Valid() {
		// Unknown stage in storage is treated as idle rather than faulting.
		s.logger.Warn("unknown conversation stage in store", "user_id", userID, "stage", stage)
		st.Stage = domain.StageIdle
		return st, nil
	}
	if err := json.Unmarshal([]byte(draftJSON), &st.Draft); err != nil {
		s.logger.Warn("unparseable draft in store, resetting", "user_id", userID, "err", err)
		st.Draft = domain.Draft{}
	}
	return st, nil
}

// SetState overwrites the single state row for a user.
func (s *SQLiteStore) SetState(ctx context.Context, st domain.ConversationState) error {
	draftJSON, err := json.Marshal(st.Draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_state (user_id, stage, draft, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET stage = excluded.stage, draft = excluded.draft, updated_at = excluded.updated_at`,
		st.UserID, string(st.Stage), string(draftJSON), time.Now(),
	)
	return err
}

func (s *SQLiteStore) CreateReminder(ctx context.Context, r domain.Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (user_id, message, remind_at) VALUES (?, ?, ?)`,
		r.UserID, r.Message, r.RemindAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DueReminders returns up to limit unsent reminders due at or before now,
// earliest first.
func (s *SQLiteStore) DueReminders(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, remind_at, sent
		 FROM reminders
		 WHERE sent = 0 AND remind_at <= ?
		 ORDER BY remind_at ASC
		 LIMIT ?`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rems []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Message, &r.RemindAt, &r.Sent); err != nil {
			return nil, err
		}
		rems = append(rems, r)
	}
	return rems, rows.Err()
}

// MarkSent flips the sent flag for one reminder. Committed per item so a
// crash mid-batch never re-delivers already-marked reminders.
func (s *SQLiteStore) MarkSent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET sent = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("reminder %d not found", id)
	}
	return err
}

// PendingCount returns the number of unsent reminders (status reporting).
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE sent = 0`,
	).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
