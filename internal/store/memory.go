package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
)

// MemoryStore implements Store with a map keyed by reddit_id. A later
// upsert of the same reddit_id replaces the earlier one.
type MemoryStore struct {
	mu     sync.RWMutex
	posts  map[string]source.Post
	nextID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{posts: make(map[string]source.Post)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) UpsertPost(_ context.Context, p *source.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(*p)
	return nil
}

func (m *MemoryStore) UpsertPosts(_ context.Context, posts []source.Post) error {
	for i := range posts {
		if err := posts[i].Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		m.put(p)
	}
	return nil
}

// put must be called with mu held.
func (m *MemoryStore) put(p source.Post) {
	if existing, ok := m.posts[p.RedditID]; ok {
		p.ID = existing.ID
	} else {
		m.nextID++
		p.ID = m.nextID
	}
	if p.CollectedAt.IsZero() {
		p.CollectedAt = time.Now()
	}
	p.CreatedUTC = p.CreatedUTC.UTC()
	p.CollectedAt = p.CollectedAt.UTC()
	p.ViralityScore = nil
	m.posts[p.RedditID] = p
}

func (m *MemoryStore) GetPost(_ context.Context, redditID string) (*source.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[redditID]
	if !ok {
		return nil, fmt.Errorf("get post %s: %w", redditID, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) ListPosts(_ context.Context, opts ListOpts) ([]source.Post, error) {
	m.mu.RLock()
	var posts []source.Post
	for _, p := range m.posts {
		if opts.Subreddit != "" && p.Subreddit != opts.Subreddit {
			continue
		}
		if !opts.Since.IsZero() && p.CreatedUTC.Before(opts.Since) {
			continue
		}
		posts = append(posts, p)
	}
	m.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		return posts[i].RedditID < posts[j].RedditID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (m *MemoryStore) CountPosts(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.posts), nil
}

func (m *MemoryStore) CountPostsBySubreddit(context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, p := range m.posts {
		counts[p.Subreddit]++
	}
	return counts, nil
}

func (m *MemoryStore) LastCollectedAt(context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last time.Time
	for _, p := range m.posts {
		if p.CollectedAt.After(last) {
			last = p.CollectedAt
		}
	}
	return last, nil
}
