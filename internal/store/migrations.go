package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    reddit_id    TEXT NOT NULL UNIQUE,
    subreddit    TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    permalink    TEXT NOT NULL DEFAULT '',
    is_video     BOOLEAN NOT NULL DEFAULT 0,
    is_self      BOOLEAN NOT NULL DEFAULT 0,
    score        INTEGER NOT NULL DEFAULT 0,
    upvote_ratio REAL NOT NULL DEFAULT 0.5,
    num_comments INTEGER NOT NULL DEFAULT 0,
    created_utc  DATETIME NOT NULL,
    collected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
CREATE INDEX IF NOT EXISTS idx_posts_created_utc ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_score ON posts(score);
CREATE INDEX IF NOT EXISTS idx_posts_collected_at ON posts(collected_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id           BIGSERIAL PRIMARY KEY,
    reddit_id    TEXT NOT NULL UNIQUE,
    subreddit    TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    permalink    TEXT NOT NULL DEFAULT '',
    is_video     BOOLEAN NOT NULL DEFAULT FALSE,
    is_self      BOOLEAN NOT NULL DEFAULT FALSE,
    score        INTEGER NOT NULL DEFAULT 0,
    upvote_ratio DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    num_comments INTEGER NOT NULL DEFAULT 0,
    created_utc  TIMESTAMPTZ NOT NULL,
    collected_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
CREATE INDEX IF NOT EXISTS idx_posts_created_utc ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_score ON posts(score);
CREATE INDEX IF NOT EXISTS idx_posts_collected_at ON posts(collected_at);
`
