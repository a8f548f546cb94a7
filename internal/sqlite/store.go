// Package sqlite provides a SQLite-backed implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/storage"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

const MemoryPath = ":memory:"

// Store persists channels, memberships, messages and users in SQLite.
// A single connection serialises writers, which also keeps createdAt monotonic.
type Store struct {
	sqlDB *sql.DB

	clockMu sync.Mutex
	last    int64
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if path != MemoryPath {
		path = filepath.Clean(path)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// tick returns a strictly increasing millisecond timestamp.
func (s *Store) tick() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ms := toMillis(s.now())
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return ms
}

func isConstraint(err error, code int) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == code
	}
	return false
}

func (s *Store) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.tick()
	ch.ID = uuid.NewString()
	ch.CreatedAt = fromMillis(now)
	ch.UpdatedAt = ch.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, name, description, is_private, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.Description, ch.IsPrivate, ch.OwnerID, now, now); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channel_members (user_id, channel_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, channel_id) DO NOTHING`,
		ch.OwnerID, ch.ID, string(domain.RoleAdmin), now); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	return tx.Commit()
}

const channelColumns = `id, name, description, is_private, owner_id, created_at, updated_at`

func (s *Store) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	return ch, err
}

func (s *Store) FindChannelByName(ctx context.Context, ownerID, name string) (*domain.Channel, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE owner_id = ? AND name = ?
		ORDER BY created_at
		LIMIT 1`, ownerID, name)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	return ch, err
}

func (s *Store) ListVisibleChannels(ctx context.Context, userID string) ([]domain.Channel, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.is_private = 0
		   OR c.owner_id = ?1
		   OR EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = ?1)
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*domain.Channel, error) {
	var (
		ch               domain.Channel
		description      sql.NullString
		created, updated int64
	)
	if err := row.Scan(&ch.ID, &ch.Name, &description, &ch.IsPrivate, &ch.OwnerID, &created, &updated); err != nil {
		return nil, err
	}
	if description.Valid {
		ch.Description = &description.String
	}
	ch.CreatedAt = fromMillis(created)
	ch.UpdatedAt = fromMillis(updated)
	return &ch, nil
}

func (s *Store) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var exists bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM channel_members WHERE user_id = ? AND channel_id = ?)`,
		userID, channelID).Scan(&exists)
	return exists, err
}

func (s *Store) GetMembership(ctx context.Context, userID, channelID string) (*domain.Membership, error) {
	var (
		m      domain.Membership
		role   string
		joined int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT user_id, channel_id, role, joined_at
		FROM channel_members
		WHERE user_id = ? AND channel_id = ?`, userID, channelID).
		Scan(&m.UserID, &m.ChannelID, &role, &joined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotMember
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	m.JoinedAt = fromMillis(joined)
	return &m, nil
}

func (s *Store) AddMember(ctx context.Context, m *domain.Membership) error {
	now := s.tick()
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO channel_members (user_id, channel_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, channel_id) DO NOTHING`,
		m.UserID, m.ChannelID, string(m.Role), now)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return domain.ErrChannelNotFound
		}
		return err
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = fromMillis(now)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, channelID string) ([]domain.Membership, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT user_id, channel_id, role, joined_at
		FROM channel_members
		WHERE channel_id = ?
		ORDER BY joined_at ASC`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Membership
	for rows.Next() {
		var (
			m      domain.Membership
			role   string
			joined int64
		)
		if err := rows.Scan(&m.UserID, &m.ChannelID, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.JoinedAt = fromMillis(joined)
		list = append(list, m)
	}
	return list, rows.Err()
}

const messageSelect = `
	SELECT m.id, m.channel_id, m.user_id, m.content, m.created_at,
	       u.name, COALESCE(u.email, ''), u.image
	FROM messages m
	LEFT JOIN users u ON u.id = m.user_id`

func (s *Store) CreateMessage(ctx context.Context, channelID, userID, content string) (*domain.Message, error) {
	id := ulid.Make().String()
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, channelID, userID, content, s.tick())
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}

	return scanMessage(s.sqlDB.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
}

func (s *Store) ListMessages(ctx context.Context, channelID string, offset, limit int, order storage.Order) ([]domain.Message, int, error) {
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE channel_id = ?`, channelID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	if limit <= 0 || offset >= total {
		return []domain.Message{}, total, nil
	}

	orderBy := ` ORDER BY m.created_at DESC, m.id DESC`
	if order == storage.OldestFirst {
		orderBy = ` ORDER BY m.created_at ASC, m.id ASC`
	}
	rows, err := s.sqlDB.QueryContext(ctx, messageSelect+` WHERE m.channel_id = ?`+orderBy+` LIMIT ? OFFSET ?`,
		channelID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		m           domain.Message
		created     int64
		name, image sql.NullString
	)
	if err := row.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Content, &created, &name, &m.Author.Email, &image); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(created)
	m.Author.ID = m.UserID
	if name.Valid {
		m.Author.Name = &name.String
	}
	if image.Valid {
		m.Author.Image = &image.String
	}
	return &m, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		u           domain.User
		name, image sql.NullString
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, name, email, image FROM users WHERE id = ?`, id).
		Scan(&u.ID, &name, &u.Email, &image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	if image.Valid {
		u.Image = &image.String
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO users (id, name, email, image)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, email = excluded.email, image = excluded.image`,
		u.ID, u.Name, u.Email, u.Image)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}
