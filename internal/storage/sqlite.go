package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "castbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// storeLayout is the naive wall-clock format used for every timestamp column.
// It sorts lexicographically in chronological order, so send_at comparisons
// can happen in SQL.
const storeLayout = "2006-01-02 15:04:05"

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default

	// Location is the process timezone; timestamps are persisted as naive
	// wall-clock strings in this zone.
	Location *time.Location
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	loc *time.Location
}

// Open initializes the sqlite store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log, loc: loc}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- time helpers ----

func (s *sqliteStore) fmtTime(t time.Time) string {
	return t.In(s.loc).Format(storeLayout)
}

func (s *sqliteStore) parseTime(v string) (time.Time, error) {
	return time.ParseInLocation(storeLayout, v, s.loc)
}

// ---- users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, telegramID int64) (User, error) {
	now := s.fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(telegram_id, joined_at) VALUES(?,?)
		 ON CONFLICT(telegram_id) DO NOTHING`,
		telegramID, now,
	)
	if err != nil {
		return User{}, err
	}
	return s.userByTelegramID(ctx, telegramID)
}

func (s *sqliteStore) SetUserLevel(ctx context.Context, telegramID int64, level string) (User, error) {
	now := s.fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(telegram_id, level, joined_at) VALUES(?,?,?)
		 ON CONFLICT(telegram_id) DO UPDATE SET level=excluded.level`,
		telegramID, level, now,
	)
	if err != nil {
		return User{}, err
	}
	return s.userByTelegramID(ctx, telegramID)
}

func (s *sqliteStore) userByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, level, joined_at FROM users WHERE telegram_id = ?`, telegramID)
	return s.scanUser(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func (s *sqliteStore) scanUser(r rowScanner) (User, error) {
	var (
		u      User
		level  sql.NullString
		joined string
	)
	if err := r.Scan(&u.ID, &u.TelegramID, &level, &joined); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Level = level.String
	if t, err := s.parseTime(joined); err == nil {
		u.JoinedAt = t
	}
	return u, nil
}

func (s *sqliteStore) Users(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, `SELECT id, telegram_id, level, joined_at FROM users ORDER BY id`)
}

func (s *sqliteStore) UsersByLevel(ctx context.Context, level string) ([]User, error) {
	return s.queryUsers(ctx,
		`SELECT id, telegram_id, level, joined_at FROM users WHERE level = ? ORDER BY id`, level)
}

func (s *sqliteStore) queryUsers(ctx context.Context, q string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ---- posts ----

const postCols = `id, title, level, text, media_type, file_id, send_at, sent, sent_at, created_at, updated_at`

func (s *sqliteStore) CreatePost(ctx context.Context, title, text string, sendAt time.Time, level string) (Post, error) {
	now := s.fmtTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(title, level, text, send_at, sent, created_at, updated_at)
		 VALUES(?,?,?,?,0,?,?)`,
		strings.TrimSpace(title), level, text, s.fmtTime(sendAt), now, now,
	)
	if err != nil {
		return Post{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Post{}, err
	}
	return s.Post(ctx, id)
}

// Post returns one post with its album rows populated. List queries skip the
// album; delivery always goes through Post to see the latest content.
func (s *sqliteStore) Post(ctx context.Context, id int64) (Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postCols+` FROM posts WHERE id = ?`, id)
	p, err := s.scanPost(row)
	if err != nil {
		return Post{}, err
	}
	album, err := s.album(ctx, id)
	if err != nil {
		return Post{}, err
	}
	p.Album = album
	return p, nil
}

func (s *sqliteStore) scanPost(r rowScanner) (Post, error) {
	var (
		p                    Post
		mediaType, fileID    sql.NullString
		sendAt               string
		sent                 int
		sentAt               sql.NullString
		createdAt, updatedAt string
	)
	err := r.Scan(&p.ID, &p.Title, &p.Level, &p.Text, &mediaType, &fileID,
		&sendAt, &sent, &sentAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, err
	}
	if mediaType.Valid && fileID.Valid {
		if kind, ok := ParseMediaKind(mediaType.String); ok {
			p.Media = &MediaItem{Kind: kind, FileID: fileID.String}
		}
	}
	p.Sent = sent != 0
	if t, err := s.parseTime(sendAt); err == nil {
		p.SendAt = t
	}
	if sentAt.Valid {
		if t, err := s.parseTime(sentAt.String); err == nil {
			p.SentAt = &t
		}
	}
	if t, err := s.parseTime(createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := s.parseTime(updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func (s *sqliteStore) album(ctx context.Context, postID int64) ([]MediaItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_type, file_id FROM post_media WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MediaItem
	for rows.Next() {
		var mt, fid string
		if err := rows.Scan(&mt, &fid); err != nil {
			return nil, err
		}
		kind, ok := ParseMediaKind(mt)
		if !ok {
			continue
		}
		out = append(out, MediaItem{Kind: kind, FileID: fid})
	}
	return out, rows.Err()
}

// HasPost reports whether a post with this exact (title, level, send_at)
// triple exists. Seeding uses it as an idempotency key.
func (s *sqliteStore) HasPost(ctx context.Context, title, level string, sendAt time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE title=? AND level=? AND send_at=?`,
		strings.TrimSpace(title), level, s.fmtTime(sendAt)).Scan(&n)
	return n > 0, err
}

func (s *sqliteStore) PostDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT substr(send_at, 1, 10) FROM posts ORDER BY 1 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountPostsByDate(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE substr(send_at, 1, 10) = ?`, date).Scan(&n)
	return n, err
}

func (s *sqliteStore) PostsByDate(ctx context.Context, date string, limit, offset int) ([]Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+postCols+` FROM posts WHERE substr(send_at, 1, 10) = ?
		 ORDER BY send_at ASC, id ASC LIMIT ? OFFSET ?`, date, limit, offset)
}

func (s *sqliteStore) CountPostsByLevel(ctx context.Context, level string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE level = ?`, level).Scan(&n)
	return n, err
}

func (s *sqliteStore) PostsByLevel(ctx context.Context, level string, limit, offset int) ([]Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+postCols+` FROM posts WHERE level = ?
		 ORDER BY send_at ASC, id ASC LIMIT ? OFFSET ?`, level, limit, offset)
}

func (s *sqliteStore) queryPosts(ctx context.Context, q string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		p, err := s.scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateTitle(ctx context.Context, id int64, title string) (Post, error) {
	return s.updatePost(ctx, id,
		`UPDATE posts SET title=?, updated_at=? WHERE id=?`,
		strings.TrimSpace(title), s.fmtTime(time.Now()), id)
}

func (s *sqliteStore) UpdateText(ctx context.Context, id int64, text string) (Post, error) {
	return s.updatePost(ctx, id,
		`UPDATE posts SET text=?, updated_at=? WHERE id=?`,
		text, s.fmtTime(time.Now()), id)
}

// UpdateContent replaces the post body with a single message's content.
// Any album is cleared: the new content supersedes it.
func (s *sqliteStore) UpdateContent(ctx context.Context, id int64, text string, media *MediaItem) (Post, error) {
	var mt, fid any
	if media != nil {
		mt, fid = string(media.Kind), media.FileID
	}
	p, err := s.updatePost(ctx, id,
		`UPDATE posts SET text=?, media_type=?, file_id=?, updated_at=? WHERE id=?`,
		text, mt, fid, s.fmtTime(time.Now()), id)
	if err != nil {
		return Post{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM post_media WHERE post_id=?`, id); err != nil {
		return Post{}, err
	}
	p.Album = nil
	return p, nil
}

func (s *sqliteStore) SetAlbum(ctx context.Context, id int64, items []MediaItem) (Post, error) {
	if _, err := s.Post(ctx, id); err != nil {
		return Post{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_media WHERE post_id=?`, id); err != nil {
		return Post{}, err
	}
	for i, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_media(post_id, position, media_type, file_id) VALUES(?,?,?,?)`,
			id, i, string(it.Kind), it.FileID)
		if err != nil {
			return Post{}, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET updated_at=? WHERE id=?`, s.fmtTime(time.Now()), id); err != nil {
		return Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return Post{}, err
	}
	return s.Post(ctx, id)
}

// UpdateSendTime reschedules a post. It always resets the sent flag so the
// post becomes deliverable again at the new time.
func (s *sqliteStore) UpdateSendTime(ctx context.Context, id int64, sendAt time.Time) (Post, error) {
	return s.updatePost(ctx, id,
		`UPDATE posts SET send_at=?, sent=0, sent_at=NULL, updated_at=? WHERE id=?`,
		s.fmtTime(sendAt), s.fmtTime(time.Now()), id)
}

func (s *sqliteStore) UpdateLevel(ctx context.Context, id int64, level string) (Post, error) {
	return s.updatePost(ctx, id,
		`UPDATE posts SET level=?, updated_at=? WHERE id=?`,
		level, s.fmtTime(time.Now()), id)
}

func (s *sqliteStore) updatePost(ctx context.Context, id int64, q string, args ...any) (Post, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return Post{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Post{}, ErrNotFound
	}
	return s.Post(ctx, id)
}

func (s *sqliteStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	// post_media rows go with the post (ON DELETE CASCADE)
	return n > 0, nil
}

// MarkSent flips a post to sent exactly once. Re-marking an already-sent post
// is a no-op, as is marking a post that no longer exists.
func (s *sqliteStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET sent=1, sent_at=?, updated_at=? WHERE id=? AND sent=0`,
		s.fmtTime(sentAt), s.fmtTime(time.Now()), id)
	return err
}

func (s *sqliteStore) UnsentDue(ctx context.Context, now time.Time) ([]Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+postCols+` FROM posts WHERE sent=0 AND send_at <= ?
		 ORDER BY send_at ASC, id ASC`, s.fmtTime(now))
}

func (s *sqliteStore) UnsentFuture(ctx context.Context, now time.Time) ([]Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+postCols+` FROM posts WHERE sent=0 AND send_at > ?
		 ORDER BY send_at ASC, id ASC`, s.fmtTime(now))
}

// ---- teaser singleton ----

func (s *sqliteStore) Teaser(ctx context.Context) (Teaser, error) {
	var (
		text    string
		mt, fid sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT teaser_text, teaser_media_type, teaser_file_id FROM broadcast_settings WHERE id=1`).
		Scan(&text, &mt, &fid)
	if errors.Is(err, sql.ErrNoRows) {
		return Teaser{}, nil
	}
	if err != nil {
		return Teaser{}, err
	}
	t := Teaser{Text: text}
	if mt.Valid && fid.Valid {
		if kind, ok := ParseMediaKind(mt.String); ok {
			t.Media = &MediaItem{Kind: kind, FileID: fid.String}
		}
	}
	return t, nil
}

func (s *sqliteStore) SetTeaser(ctx context.Context, t Teaser) error {
	var mt, fid any
	if t.Media != nil {
		mt, fid = string(t.Media.Kind), t.Media.FileID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_settings(id, teaser_text, teaser_media_type, teaser_file_id, updated_at)
		 VALUES(1,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   teaser_text=excluded.teaser_text,
		   teaser_media_type=excluded.teaser_media_type,
		   teaser_file_id=excluded.teaser_file_id,
		   updated_at=excluded.updated_at`,
		t.Text, mt, fid, s.fmtTime(time.Now()),
	)
	return err
}
