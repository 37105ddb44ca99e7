// Package domain defines the marketplace records persisted by the flat-file
// tables in package repo and shared by the service and HTTP layers.
//
// JSON tags mirror the on-disk layout of each table file, so renaming a tag
// is a data migration.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are stored and served as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is a registered account. Email is stored normalized (trimmed, lower-case).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// PublicUser is the subset of User safe to return to clients.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public strips credentials from u.
func (u User) Public() PublicUser { return PublicUser{ID: u.ID, Email: u.Email} }

// PostStatus is the lifecycle state of a listing.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostSoldOut   PostStatus = "sold_out"
)

// NormalizePostStatus keeps draft and sold_out and maps anything else to published.
func NormalizePostStatus(s string) PostStatus {
	switch PostStatus(s) {
	case PostDraft, PostSoldOut:
		return PostStatus(s)
	default:
		return PostPublished
	}
}

// Post is a sellable listing owned by AuthorID.
//
// Invariants: Stock >= 0, and Status == PostSoldOut implies Stock == 0.
type Post struct {
	ID            string           `json:"id"`
	AuthorID      string           `json:"authorId"`
	Title         string           `json:"title"`
	Content       string           `json:"content"`
	Category      string           `json:"category"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Stock         int              `json:"stock"`
	Images        []string         `json:"images"`
	Status        PostStatus       `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// OrderStatus is the lifecycle state of an order: created -> cancelled (terminal).
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a purchase of Quantity units of a post at the price in effect
// when it was placed. UnitPrice and TotalAmount never change afterwards.
type Order struct {
	ID          string          `json:"id"`
	PostID      string          `json:"postId"`
	BuyerID     string          `json:"buyerId"`
	SellerID    string          `json:"sellerId"`
	Title       string          `json:"title"`
	Image       string          `json:"image"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}

// SalesOrder is an order as shown to its seller, joined with the buyer email.
type SalesOrder struct {
	Order
	BuyerEmail string `json:"buyerEmail"`
}

// Session binds a refresh token to a user until ExpiresAt.
type Session struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	RefreshToken string    `json:"refreshToken"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ChatConversation is the single thread between two users. ParticipantIDs is
// sorted so the same pair always maps to the same conversation.
type ChatConversation struct {
	ID             string    `json:"id"`
	ParticipantIDs [2]string `json:"participantIds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Has reports whether userID takes part in the conversation.
func (c ChatConversation) Has(userID string) bool {
	return c.ParticipantIDs[0] == userID || c.ParticipantIDs[1] == userID
}

// Partner returns the other participant.
func (c ChatConversation) Partner(userID string) string {
	if c.ParticipantIDs[0] == userID {
		return c.ParticipantIDs[1]
	}
	return c.ParticipantIDs[0]
}

// ChatMessage is a direct message. ReadAt is set once, when the receiver
// opens the conversation.
type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// InboxEntry summarizes one conversation for a participant.
type InboxEntry struct {
	ConversationID string    `json:"conversationId"`
	PartnerID      string    `json:"partnerId"`
	PartnerEmail   string    `json:"partnerEmail"`
	LastMessage    string    `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnreadCount    int       `json:"unreadCount"`
}

// ConversationView is the payload of an opened conversation. ConversationID
// is nil when the pair has never exchanged a message.
type ConversationView struct {
	ConversationID *string       `json:"conversationId"`
	PartnerID      string        `json:"partnerId"`
	PartnerEmail   string        `json:"partnerEmail"`
	Messages       []ChatMessage `json:"messages"`
}

// SupportRole tells who authored a support message.
type SupportRole string

const (
	SupportRoleUser    SupportRole = "user"
	SupportRoleSupport SupportRole = "support"
)

// SupportSource tells where a support message entered the system.
type SupportSource string

const (
	SupportSourceWeb      SupportSource = "web"
	SupportSourceTelegram SupportSource = "telegram"
)

// SupportMessage is one entry of a support conversation. Telegram-sourced
// messages are unique per TelegramMessageID within their conversation.
type SupportMessage struct {
	ID                       string        `json:"id"`
	ConversationKey          string        `json:"conversationKey"`
	Role                     SupportRole   `json:"role"`
	Source                   SupportSource `json:"source"`
	Text                     string        `json:"text"`
	CreatedAt                time.Time     `json:"createdAt"`
	TelegramMessageID        *int64        `json:"telegramMessageId,omitempty"`
	ReplyToTelegramMessageID *int64        `json:"replyToTelegramMessageId,omitempty"`
}

// SupportConversation groups all support messages of one requester key
// ("user:<id>" or "guest:<ip>").
type SupportConversation struct {
	Key       string           `json:"key"`
	UserID    *string          `json:"userId"`
	UserEmail string           `json:"userEmail"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Messages  []SupportMessage `json:"messages"`
}

// HasTelegramMessage reports whether a message with the given external id is
// already stored.
func (c *SupportConversation) HasTelegramMessage(id int64) bool {
	for _, m := range c.Messages {
		if m.TelegramMessageID != nil && *m.TelegramMessageID == id {
			return true
		}
	}
	return false
}

// SupportBotState is the inbound sync checkpoint.
type SupportBotState struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}
