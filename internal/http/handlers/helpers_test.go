package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/repo"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// stubChannel is an in-memory support channel.
type stubChannel struct {
	mu      sync.Mutex
	nextID  int64
	texts   []string
	sendErr error
	updates []services.InboundUpdate
}

func (s *stubChannel) Send(_ context.Context, _, _, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	s.nextID++
	s.texts = append(s.texts, text)
	return 500 + s.nextID, nil
}

func (s *stubChannel) PollUpdates(_ context.Context, offset int64, _, _ int) ([]services.InboundUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []services.InboundUpdate
	for _, u := range s.updates {
		if u.UpdateID >= offset {
			out = append(out, u)
		}
	}
	return out, nil
}

const testSyncSecret = "s3cret"

type testEnv struct {
	r       *gin.Engine
	store   *repo.Store
	auth    *services.AuthService
	channel *stubChannel
	idem    *repo.IdempotencyStore
}

type envOption func(*Deps)

func withoutSupport() envOption {
	return func(d *Deps) {
		d.Support = services.NewSupportService(nil, nil, nil, services.SupportConfig{})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	st := repo.OpenStore(t.TempDir())
	auth := services.NewAuthService(st.Users, st.Sessions, services.AuthConfig{
		AccessSecret:  []byte("test-access"),
		RefreshSecret: []byte("test-refresh"),
		BcryptCost:    bcrypt.MinCost,
	})
	ch := &stubChannel{}

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	idem := &repo.IdempotencyStore{DB: db, TTL: time.Hour}

	deps := Deps{
		Auth:        auth,
		Posts:       services.NewPostService(st.Posts),
		Orders:      services.NewOrderService(st.Orders, st.Posts, st.Users),
		Chats:       services.NewUserChatService(st.UserChats, st.Users),
		Support:     services.NewSupportService(st.SupportChats, st.SupportBot, ch, services.SupportConfig{ChatID: "-100"}),
		Idempotency: idem,
		SyncSecret:  testSyncSecret,
	}
	for _, o := range opts {
		o(&deps)
	}
	h := New(deps)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.OptionalAuth(auth))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Lookup))
	authed := middleware.RequireAuth()

	api := r.Group("/api")
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", authed, h.Me)
	api.GET("/auth/sessions", authed, h.Sessions)
	api.POST("/auth/disconnect", authed, h.Disconnect)

	api.GET("/posts", h.ListPosts)
	api.POST("/posts", authed, h.CreatePost)
	api.GET("/posts/:id", h.GetPost)
	api.PATCH("/posts/:id", authed, h.UpdatePost)
	api.DELETE("/posts/:id", authed, h.DeletePost)
	api.GET("/products", h.ListProducts)

	api.GET("/orders", authed, h.ListOrders)
	api.POST("/orders", authed, h.CreateOrder)
	api.GET("/orders/:id", authed, h.GetOrder)
	api.PATCH("/orders/:id", authed, h.UpdateOrder)
	api.DELETE("/orders/:id", authed, h.CancelOrder)

	api.GET("/chats", authed, h.GetChats)
	api.POST("/chats", authed, h.SendChat)
	api.GET("/chats/users", authed, h.ChatUsers)

	api.POST("/support/message", h.SendSupport)
	api.GET("/support/messages", h.SupportMessages)
	api.POST("/support/sync", h.SyncSupport)

	return &testEnv{r: r, store: st, auth: auth, channel: ch, idem: idem}
}

// reqOpt mutates an outgoing request.
type reqOpt func(*http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func cookie(name, value string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func (e *testEnv) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// signup registers email and returns its id and access token.
func (e *testEnv) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	res, err := e.auth.Signup(context.Background(), email, "password123")
	require.NoError(t, err)
	return res.User.ID, res.Tokens.AccessToken
}

func (e *testEnv) seedPost(t *testing.T, p domain.Post) {
	t.Helper()
	require.NoError(t, e.store.Posts.Update(context.Background(), func(doc *domain.PostsFile) error {
		doc.Posts = append(doc.Posts, p)
		return nil
	}))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code, msg string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	e := decode[ErrorResponse](t, w)
	require.Equal(t, code, e.Code)
	if msg != "" {
		require.Equal(t, msg, e.Error)
	}
	require.NotEmpty(t, e.RequestID)
}
