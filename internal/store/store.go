package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrNotFound is returned when a post does not exist.
var ErrNotFound = errors.New("not found")

const defaultListLimit = 100

// ListOpts controls post listing. Results are always ordered by raw score,
// highest first.
type ListOpts struct {
	Subreddit string
	// Since keeps posts created at or after this instant.
	Since time.Time
	Limit int
}

// Store is the persistence interface.
type Store interface {
	UpsertPost(ctx context.Context, p *source.Post) error
	UpsertPosts(ctx context.Context, posts []source.Post) error
	GetPost(ctx context.Context, redditID string) (*source.Post, error)
	ListPosts(ctx context.Context, opts ListOpts) ([]source.Post, error)

	CountPosts(ctx context.Context) (int, error)
	CountPostsBySubreddit(ctx context.Context) (map[string]int, error)
	LastCollectedAt(ctx context.Context) (time.Time, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store for driver. dsn is a file path for sqlite and a
// connection URL for postgres; it is ignored for memory.
func Open(driver, dsn string) (Store, error) {
	if driver == DriverMemory {
		return NewMemory(), nil
	}
	return New(driver, dsn)
}

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	db *sqlx.DB
}

// New opens a SQL database and runs migrations.
func New(driver, dsn string) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch driver {
	case DriverSQLite, "":
		db, err = sqlx.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err == nil {
			// A single writer avoids SQLITE_BUSY under concurrent upserts.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const upsertPostSQL = `
	INSERT INTO posts (reddit_id, subreddit, title, url, author, permalink, is_video, is_self,
		score, upvote_ratio, num_comments, created_utc, collected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(reddit_id) DO UPDATE SET
		subreddit = excluded.subreddit,
		title = excluded.title,
		url = excluded.url,
		author = excluded.author,
		permalink = excluded.permalink,
		is_video = excluded.is_video,
		is_self = excluded.is_self,
		score = excluded.score,
		upvote_ratio = excluded.upvote_ratio,
		num_comments = excluded.num_comments,
		created_utc = excluded.created_utc,
		collected_at = excluded.collected_at
`

func (s *SQLStore) UpsertPost(ctx context.Context, p *source.Post) error {
	return s.upsert(ctx, s.db, p)
}

func (s *SQLStore) UpsertPosts(ctx context.Context, posts []source.Post) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	for i := range posts {
		if err := s.upsert(ctx, tx, &posts[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *SQLStore) upsert(ctx context.Context, ex sqlx.ExecerContext, p *source.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	collectedAt := p.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, s.db.Rebind(upsertPostSQL),
		p.RedditID, p.Subreddit, p.Title, p.URL, p.Author, p.Permalink, p.IsVideo, p.IsSelf,
		p.Score, p.UpvoteRatio, p.NumComments, p.CreatedUTC.UTC(), collectedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.RedditID, err)
	}
	return nil
}

func (s *SQLStore) GetPost(ctx context.Context, redditID string) (*source.Post, error) {
	var p source.Post
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT * FROM posts WHERE reddit_id = ?"), redditID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get post %s: %w", redditID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", redditID, err)
	}
	normalize(&p)
	return &p, nil
}

func (s *SQLStore) ListPosts(ctx context.Context, opts ListOpts) ([]source.Post, error) {
	query := "SELECT * FROM posts WHERE 1=1"
	var args []any

	if opts.Subreddit != "" {
		query += " AND subreddit = ?"
		args = append(args, opts.Subreddit)
	}
	if !opts.Since.IsZero() {
		query += " AND created_utc >= ?"
		args = append(args, opts.Since.UTC())
	}

	query += " ORDER BY score DESC, reddit_id ASC"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var posts []source.Post
	if err := s.db.SelectContext(ctx, &posts, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		normalize(&posts[i])
	}
	return posts, nil
}

func (s *SQLStore) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *SQLStore) CountPostsBySubreddit(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT subreddit, COUNT(*) AS cnt FROM posts GROUP BY subreddit")
	if err != nil {
		return nil, fmt.Errorf("count posts by subreddit: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sub string
		var cnt int
		if err := rows.Scan(&sub, &cnt); err != nil {
			return nil, fmt.Errorf("scan subreddit count: %w", err)
		}
		counts[sub] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLStore) LastCollectedAt(ctx context.Context) (time.Time, error) {
	var p source.Post
	err := s.db.GetContext(ctx, &p, "SELECT * FROM posts ORDER BY collected_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last collection: %w", err)
	}
	return p.CollectedAt.UTC(), nil
}

func normalize(p *source.Post) {
	p.CreatedUTC = p.CreatedUTC.UTC()
	p.CollectedAt = p.CollectedAt.UTC()
}
