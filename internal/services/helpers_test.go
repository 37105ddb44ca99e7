package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/repo"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	return repo.OpenStore(t.TempDir())
}

func seedUsers(t *testing.T, st *repo.Store, users ...domain.User) {
	t.Helper()
	require.NoError(t, st.Users.Write(context.Background(), domain.UsersFile{Users: users}))
}

func seedPosts(t *testing.T, st *repo.Store, posts ...domain.Post) {
	t.Helper()
	require.NoError(t, st.Posts.Write(context.Background(), domain.PostsFile{Posts: posts}))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, KindOf(err), "error %q", err)
}
