package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService manages accounts and session-bound token pairs.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Disconnect(ctx context.Context, userID, sessionID string) error
	ListSessions(ctx context.Context, userID, currentRefresh string) ([]services.SessionInfo, error)
	Me(ctx context.Context, userID string) (domain.PublicUser, error)
}

// PostService manages listings.
type PostService interface {
	Create(ctx context.Context, authorID string, in services.PostInput) (*domain.Post, error)
	Update(ctx context.Context, userID, postID string, in services.PostUpdate) (*domain.Post, error)
	Delete(ctx context.Context, userID, postID string) error
	Get(ctx context.Context, requesterID, postID string) (*domain.Post, error)
	Inventory(ctx context.Context, authorID string) ([]domain.Post, error)
	Storefront(ctx context.Context, f services.StorefrontFilter) ([]domain.Post, error)
}

// OrderService places and cancels orders.
type OrderService interface {
	Create(ctx context.Context, buyerID, postID string, quantity int) (*domain.Order, error)
	Cancel(ctx context.Context, requesterID, orderID string) (*domain.Order, error)
	Get(ctx context.Context, requesterID, orderID string) (*domain.Order, error)
	ByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	BySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	SalesBySeller(ctx context.Context, sellerID string) ([]domain.SalesOrder, error)
}

// ChatService is user-to-user messaging.
type ChatService interface {
	ListUsers(ctx context.Context, excludeID string) ([]domain.PublicUser, error)
	Send(ctx context.Context, senderID, receiverID, text string) (*domain.ChatMessage, error)
	Conversation(ctx context.Context, userID, partnerID string) (*domain.ConversationView, error)
	Inbox(ctx context.Context, userID string) ([]domain.InboxEntry, error)
}

// SupportService is the bridge to the external support channel.
type SupportService interface {
	Send(ctx context.Context, who services.Requester, text string) (*services.SendResult, error)
	Sync(ctx context.Context) (*services.SyncResult, error)
	Messages(ctx context.Context, key string) (*services.SupportThread, error)
}

// IdempotencyRecorder stores the outcome of a request made with an
// Idempotency-Key.
type IdempotencyRecorder interface {
	Save(ctx context.Context, owner, scope, key, resourceID string, status int) (*domain.Idempotency, error)
}

//
// Handler wiring
//

// CookieConfig controls the auth cookies.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Deps are the collaborators of Handlers. Idempotency may be nil, in which
// case keys are validated but never recorded.
type Deps struct {
	Auth        AuthService
	Posts       PostService
	Orders      OrderService
	Chats       ChatService
	Support     SupportService
	Idempotency IdempotencyRecorder
	Cookies     CookieConfig
	// SyncSecret protects POST /support/sync; empty leaves it open.
	SyncSecret string
}

// Handlers groups every API endpoint.
type Handlers struct {
	auth       AuthService
	posts      PostService
	orders     OrderService
	chats      ChatService
	support    SupportService
	idem       IdempotencyRecorder
	cookies    CookieConfig
	syncSecret string
}

// New binds handlers to their services.
func New(d Deps) *Handlers {
	if d.Cookies.AccessTTL <= 0 {
		d.Cookies.AccessTTL = 15 * time.Minute
	}
	if d.Cookies.RefreshTTL <= 0 {
		d.Cookies.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Handlers{
		auth:       d.Auth,
		posts:      d.Posts,
		orders:     d.Orders,
		chats:      d.Chats,
		support:    d.Support,
		idem:       d.Idempotency,
		cookies:    d.Cookies,
		syncSecret: strings.TrimSpace(d.SyncSecret),
	}
}

// requester is the authenticated caller for support purposes; guests are
// identified by their normalized client IP.
func requester(c *gin.Context) services.Requester {
	realIP := c.GetHeader("X-Real-IP")
	if realIP == "" {
		realIP = c.RemoteIP()
	}
	return services.Requester{
		ID:    middleware.UserID(c),
		Email: middleware.UserEmail(c),
		IP:    services.NormalizeClientIP(c.GetHeader("X-Forwarded-For"), realIP),
	}
}

// bindJSON binds the request body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, middleware.BindingMessage(err))
		return false
	}
	return true
}
