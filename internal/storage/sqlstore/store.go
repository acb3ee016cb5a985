// Package sqlstore implements chat.Store over database/sql. The sqlite and
// postgres packages supply the connection and a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/google/uuid"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name string
	// Rebind rewrites '?' placeholders into the driver's syntax.
	Rebind            func(query string) string
	IsUniqueViolation func(err error) bool
}

// RebindDollar turns '?' placeholders into $1, $2, ...
func RebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	if d.Rebind == nil {
		d.Rebind = func(q string) string { return q }
	}
	if d.IsUniqueViolation == nil {
		d.IsUniqueViolation = func(error) bool { return false }
	}
	s := &Store{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ chat.Store = (*Store)(nil)

const (
	userColumns    = `username, email, created_at, last_seen`
	messageColumns = `id, sender, recipient, body, status, created_at`
)

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) UpsertUser(ctx context.Context, username, email string) (chat.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET email = excluded.email
		RETURNING `+userColumns), username, email, s.now().UnixMilli())

	u, err := scanUser(row)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return chat.User{}, fmt.Errorf("upsert user %q: %w", username, chat.ErrUserConflict)
		}
		return chat.User{}, fmt.Errorf("upsert user %q: %w", username, err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (chat.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]chat.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collectUsers(rows)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]chat.User, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+userColumns+` FROM users
		WHERE LOWER(username) LIKE ? ESCAPE '\' ORDER BY username LIMIT ?`), pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return collectUsers(rows)
}

func (s *Store) TouchLastSeen(ctx context.Context, username string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET last_seen = ? WHERE username = ?`), at.UnixMilli(), username)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.ErrUserNotFound
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, in chat.NewMessage) (chat.Message, error) {
	if !in.Status.Valid() {
		return chat.Message{}, fmt.Errorf("insert message: invalid status %q", in.Status)
	}
	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO messages (id, sender, recipient, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+messageColumns),
		s.newID(), in.Sender, in.Recipient, in.Body, string(in.Status), s.now().UnixMilli())

	m, err := scanMessage(row)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *Store) FindMessagesBetween(ctx context.Context, key chat.ConversationKey, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}
	a, b := key.Users()
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+` FROM messages
			WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
			ORDER BY seq DESC
			LIMIT ?
		) recent
		ORDER BY seq ASC`), a, b, b, a, limit)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id, recipient string, status chat.Status) (chat.Message, bool, error) {
	from := chat.StatusesBefore(status)
	if len(from) > 0 {
		args := []any{string(status), id, recipient}
		for _, st := range from {
			args = append(args, string(st))
		}
		row := s.db.QueryRowContext(ctx, s.q(`UPDATE messages SET status = ?
			WHERE id = ? AND recipient = ? AND status IN (`+placeholders(len(from))+`)
			RETURNING `+messageColumns), args...)
		m, err := scanMessage(row)
		if err == nil {
			return m, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, false, fmt.Errorf("update message status: %w", err)
		}
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages WHERE id = ? AND recipient = ?`), id, recipient)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, false, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("read message: %w", err)
	}
	return m, false, nil
}

func (s *Store) UpdateMessagesStatusBulk(ctx context.Context, filter chat.StatusFilter, status chat.Status) ([]chat.Message, error) {
	if filter.Recipient == "" {
		return nil, errors.New("bulk status update: recipient required")
	}
	from := make([]chat.Status, 0, len(filter.From))
	for _, st := range filter.From {
		if st.Before(status) {
			from = append(from, st)
		}
	}
	if len(from) == 0 {
		return nil, nil
	}

	query := `UPDATE messages SET status = ? WHERE recipient = ?`
	args := []any{string(status), filter.Recipient}
	if filter.Sender != "" {
		query += ` AND sender = ?`
		args = append(args, filter.Sender)
	}
	query += ` AND status IN (` + placeholders(len(from)) + `) RETURNING seq, ` + messageColumns
	for _, st := range from {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("bulk status update: %w", err)
	}
	defer rows.Close()

	type seqMsg struct {
		seq int64
		msg chat.Message
	}
	var out []seqMsg
	for rows.Next() {
		var seq int64
		m, err := scanMessageWith(rows.Scan, &seq)
		if err != nil {
			return nil, fmt.Errorf("bulk status update scan: %w", err)
		}
		out = append(out, seqMsg{seq: seq, msg: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk status update rows: %w", err)
	}

	// RETURNING order is unspecified.
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	msgs := make([]chat.Message, 0, len(out))
	for _, sm := range out {
		msgs = append(msgs, sm.msg)
	}
	return msgs, nil
}

// ---- scanning ----

func scanUser(row *sql.Row) (chat.User, error) {
	var (
		u        chat.User
		created  int64
		lastSeen sql.NullInt64
	)
	if err := row.Scan(&u.Username, &u.Email, &created, &lastSeen); err != nil {
		return chat.User{}, err
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	if lastSeen.Valid {
		u.LastSeen = time.UnixMilli(lastSeen.Int64).UTC()
	}
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]chat.User, error) {
	defer rows.Close()
	var out []chat.User
	for rows.Next() {
		var (
			u        chat.User
			created  int64
			lastSeen sql.NullInt64
		)
		if err := rows.Scan(&u.Username, &u.Email, &created, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = time.UnixMilli(created).UTC()
		if lastSeen.Valid {
			u.LastSeen = time.UnixMilli(lastSeen.Int64).UTC()
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanMessage(row *sql.Row) (chat.Message, error) {
	return scanMessageWith(row.Scan)
}

func scanMessageWith(scan func(dest ...any) error, prefix ...any) (chat.Message, error) {
	var (
		m       chat.Message
		status  string
		created int64
	)
	dest := append(prefix, &m.ID, &m.Sender, &m.Recipient, &m.Body, &status, &created)
	if err := scan(dest...); err != nil {
		return chat.Message{}, err
	}
	st, err := chat.ParseStatus(status)
	if err != nil {
		return chat.Message{}, err
	}
	m.Status = st
	m.CreatedAt = time.UnixMilli(created).UTC()
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]chat.Message, error) {
	defer rows.Close()
	var out []chat.Message
	for rows.Next() {
		m, err := scanMessageWith(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
