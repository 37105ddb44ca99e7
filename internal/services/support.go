// Package services - SupportService
//
// This file implements the bridge between web visitors and a Telegram
// support chat. A visitor is identified by user id when signed in and by
// client IP otherwise; that identity is the conversation key.
//
// Outbound messages are sent first and stored only after the channel
// accepted them. The returned Telegram message id is indexed under bare,
// chat and chat+thread keys so that replies can be matched back.
//
// Sync pulls updates after the stored checkpoint. A reply is routed through
// the index first and through a "CID: <key>" tag in the quoted or own text
// second. Messages are deduplicated by Telegram id, and the checkpoint
// advances past every update seen, saved or not.

package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samrith-ratana/e-commerce/internal/domain"
)

// SupportMaxLen is the longest support message accepted, in characters.
const SupportMaxLen = 1500

const (
	syncBatchLimit = 100
	guestEmail     = "guest"
	unknownEmail   = "unknown"
	defaultLabel   = "support"
)

var cidPattern = regexp.MustCompile(`CID:\s*([^\n\r]+)`)

// SupportChannel is the external chat-bot channel support messages are
// relayed through.
type SupportChannel interface {
	// Send posts text to chatID (and threadID when non-empty) and returns the
	// external message id.
	Send(ctx context.Context, chatID, threadID, text string) (int64, error)
	// PollUpdates returns updates with id >= offset.
	PollUpdates(ctx context.Context, offset int64, limit, timeout int) ([]InboundUpdate, error)
}

// InboundUpdate is one update pulled from the channel. Message is nil for
// update kinds that carry no message.
type InboundUpdate struct {
	UpdateID int64
	Message  *InboundMessage
}

type InboundMessage struct {
	MessageID int64
	ChatID    string
	ThreadID  string
	Date      time.Time
	Text      string
	Caption   string

	FromBot       bool
	FromUsername  string
	FromFirstName string
	FromLastName  string

	SenderChatTitle    string
	SenderChatUsername string

	ReplyTo *InboundReply
}

type InboundReply struct {
	MessageID int64
	Text      string
	Caption   string
}

// Body returns the trimmed text, falling back to the caption.
func (m *InboundMessage) Body() string {
	if m == nil {
		return ""
	}
	return bodyOf(m.Text, m.Caption)
}

func (r *InboundReply) Body() string {
	if r == nil {
		return ""
	}
	return bodyOf(r.Text, r.Caption)
}

func bodyOf(text, caption string) string {
	if text != "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(caption)
}

// SenderLabel names the author of m the way support replies are prefixed.
func (m *InboundMessage) SenderLabel() string {
	if m.FromUsername != "" {
		return m.FromUsername
	}
	name := strings.TrimSpace(strings.Join(nonEmpty(m.FromFirstName, m.FromLastName), " "))
	switch {
	case name != "":
		return name
	case m.SenderChatTitle != "":
		return m.SenderChatTitle
	case m.SenderChatUsername != "":
		return m.SenderChatUsername
	}
	return defaultLabel
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SupportConfig selects the external chat the bridge talks to.
type SupportConfig struct {
	ChatID   string
	ThreadID string
	Brand    string
}

// Requester identifies who opened a support message. ID and Email are empty
// for guests.
type Requester struct {
	ID    string
	Email string
	IP    string
}

// SendResult is returned by SupportService.Send.
type SendResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	MessageID       int64  `json:"messageId"`
	ConversationKey string `json:"conversationKey"`
}

// SyncResult summarizes one inbound sync.
type SyncResult struct {
	Processed    int   `json:"processed"`
	Saved        int   `json:"saved"`
	LastUpdateID int64 `json:"lastUpdateId"`
}

// SupportMessageView is the public projection of a support message.
type SupportMessageView struct {
	ID        string             `json:"id"`
	Role      domain.SupportRole `json:"role"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"createdAt"`
}

type SupportThread struct {
	ConversationKey string               `json:"conversationKey"`
	Messages        []SupportMessageView `json:"messages"`
}

// SupportService relays support messages between web visitors and an
// external channel. Replies are correlated back through the message index
// first and the embedded CID tag second.
type SupportService struct {
	Chats   Table[domain.SupportChatsFile]
	State   Table[domain.SupportBotState]
	Channel SupportChannel
	Cfg     SupportConfig
	Now     func() time.Time
}

// NewSupportService wires the bridge. A nil channel or empty chat id leaves
// the bridge disabled and Send reports ErrSupportUnavailable.
func NewSupportService(chats Table[domain.SupportChatsFile], state Table[domain.SupportBotState], ch SupportChannel, cfg SupportConfig) *SupportService {
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	cfg.ThreadID = strings.TrimSpace(cfg.ThreadID)
	if cfg.Brand == "" {
		cfg.Brand = "OpenMart"
	}
	return &SupportService{Chats: chats, State: state, Channel: ch, Cfg: cfg, Now: time.Now}
}

func (s *SupportService) Enabled() bool {
	return s.Channel != nil && s.Cfg.ChatID != ""
}

// ConversationKey returns "user:<id>" for signed-in requesters and
// "guest:<ip>" otherwise.
func ConversationKey(userID, ip string) string {
	if userID != "" {
		return "user:" + userID
	}
	if ip == "" {
		ip = "unknown"
	}
	return "guest:" + ip
}

// NormalizeClientIP takes the first entry of a forwarded-for list and drops
// every character outside [A-Za-z0-9:.-].
func NormalizeClientIP(forwardedFor, realIP string) string {
	raw := forwardedFor
	if raw == "" {
		raw = realIP
	}
	if raw == "" {
		raw = "unknown"
	}
	first, _, _ := strings.Cut(raw, ",")
	first = strings.TrimSpace(first)

	var b strings.Builder
	for _, r := range first {
		if r < utf8.RuneSelf && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ':' || r == '.' || r == '-') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Send relays text to the external channel and stores it in the requester's
// conversation. Nothing is persisted when the channel call fails.
func (s *SupportService) Send(ctx context.Context, who Requester, text string) (*SendResult, error) {
	key := ConversationKey(who.ID, who.IP)
	ctx, span := startSpan(ctx, "SupportService", "Send", attribute.String("support.conversation_key", key))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageRequired
	}
	if utf8.RuneCountInString(text) > SupportMaxLen {
		return nil, ErrMessageTooLong
	}
	if !s.Enabled() {
		return nil, ErrSupportUnavailable
	}

	now := s.Now().UTC()
	externalID, err := s.Channel.Send(ctx, s.Cfg.ChatID, s.Cfg.ThreadID, s.header(key, who, now, text))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("send support message: %w", err)
	}

	var userID *string
	email := guestEmail
	if who.ID != "" {
		id := who.ID
		userID = &id
		email = who.Email
	}

	err = s.Chats.Update(ctx, func(doc *domain.SupportChatsFile) error {
		conv := doc.Find(key)
		if conv == nil {
			doc.Conversations = append(doc.Conversations, domain.SupportConversation{
				Key:       key,
				CreatedAt: now,
				Messages:  []domain.SupportMessage{},
			})
			conv = &doc.Conversations[len(doc.Conversations)-1]
		}
		conv.UserID = userID
		conv.UserEmail = email
		conv.UpdatedAt = s.Now().UTC()

		tgID := externalID
		conv.Messages = append(conv.Messages, domain.SupportMessage{
			ID:                makeChatID(chatMsgIDPrefix, now),
			ConversationKey:   key,
			Role:              domain.SupportRoleUser,
			Source:            domain.SupportSourceWeb,
			Text:              text,
			CreatedAt:         now,
			TelegramMessageID: &tgID,
		})
		for _, k := range indexKeys(s.Cfg.ChatID, s.Cfg.ThreadID, externalID) {
			doc.TelegramMessageIndex[k] = key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	supportMessagesTotal.WithLabelValues(string(domain.SupportSourceWeb)).Inc()
	log.Info().Str("conversation_key", key).Int64("telegram_message_id", externalID).Msg("support message relayed")

	return &SendResult{
		Success:         true,
		Message:         "Message sent to support",
		MessageID:       externalID,
		ConversationKey: key,
	}, nil
}

func (s *SupportService) header(key string, who Requester, now time.Time, text string) string {
	user := "User: guest"
	if who.ID != "" {
		user = fmt.Sprintf("User: %s (%s)", who.Email, who.ID)
	}
	lines := []string{
		"[" + s.Cfg.Brand + " Support]",
		"CID: " + key,
		"Time: " + now.Format(time.RFC3339),
		user,
		"IP: " + who.IP,
		"",
		text,
	}
	return strings.Join(lines, "\n")
}

// indexKeys lists the composite keys an external message is indexed under,
// most specific last.
func indexKeys(chatID, threadID string, msgID int64) []string {
	id := strconv.FormatInt(msgID, 10)
	keys := []string{id}
	if chatID != "" {
		keys = append(keys, chatID+":"+id)
		if threadID != "" {
			keys = append(keys, chatID+":"+threadID+":"+id)
		}
	}
	return keys
}

// extractCID returns the conversation key embedded in text, or "".
func extractCID(text string) string {
	m := cidPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Sync pulls channel updates after the stored checkpoint and files replies
// into their conversations. The checkpoint advances past every update seen,
// saved or not.
func (s *SupportService) Sync(ctx context.Context) (*SyncResult, error) {
	ctx, span := startSpan(ctx, "SupportService", "Sync")
	defer span.End()

	if s.Channel == nil {
		return nil, ErrSupportUnavailable
	}

	state, err := s.State.Read(ctx)
	if err != nil {
		return nil, err
	}

	updates, err := s.Channel.PollUpdates(ctx, state.LastUpdateID+1, syncBatchLimit, 0)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("poll support updates: %w", err)
	}

	if len(updates) == 0 {
		now := s.Now().UTC()
		state.LastSyncedAt = &now
		if err := s.State.Write(ctx, state); err != nil {
			return nil, err
		}
		return &SyncResult{LastUpdateID: state.LastUpdateID}, nil
	}

	res := &SyncResult{Processed: len(updates), LastUpdateID: state.LastUpdateID}
	err = s.Chats.Update(ctx, func(doc *domain.SupportChatsFile) error {
		for _, u := range updates {
			if u.UpdateID > res.LastUpdateID {
				res.LastUpdateID = u.UpdateID
			}
			outcome := s.apply(doc, u.Message)
			supportSyncUpdates.WithLabelValues(outcome).Inc()
			if outcome == "saved" {
				res.Saved++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	if err := s.State.Write(ctx, domain.SupportBotState{LastUpdateID: res.LastUpdateID, LastSyncedAt: &now}); err != nil {
		return nil, err
	}

	if res.Saved > 0 {
		supportMessagesTotal.WithLabelValues(string(domain.SupportSourceTelegram)).Add(float64(res.Saved))
	}
	log.Info().Int("processed", res.Processed).Int("saved", res.Saved).Int64("last_update_id", res.LastUpdateID).
		Msg("support sync done")
	return res, nil
}

// apply files one inbound message and reports saved, duplicate or skipped.
func (s *SupportService) apply(doc *domain.SupportChatsFile, msg *InboundMessage) string {
	if msg == nil || msg.MessageID == 0 || msg.FromBot {
		return "skipped"
	}
	text := msg.Body()
	if text == "" {
		return "skipped"
	}
	if s.Cfg.ChatID != "" && msg.ChatID != "" && msg.ChatID != s.Cfg.ChatID {
		return "skipped"
	}
	if s.Cfg.ThreadID != "" && msg.ThreadID != "" && msg.ThreadID != s.Cfg.ThreadID {
		return "skipped"
	}

	key := ""
	var replyTo *int64
	if msg.ReplyTo != nil {
		id := msg.ReplyTo.MessageID
		replyTo = &id
		key = lookupReply(doc, msg.ChatID, msg.ThreadID, id)
	}
	if key == "" {
		source := msg.ReplyTo.Body()
		if source == "" {
			source = text
		}
		key = extractCID(source)
	}
	if key == "" {
		return "skipped"
	}

	now := s.Now().UTC()
	conv := doc.Find(key)
	if conv == nil {
		c := domain.SupportConversation{
			Key:       key,
			UserEmail: unknownEmail,
			CreatedAt: now,
			UpdatedAt: now,
			Messages:  []domain.SupportMessage{},
		}
		if id, ok := strings.CutPrefix(key, "user:"); ok {
			c.UserID = &id
		}
		doc.Conversations = append(doc.Conversations, c)
		conv = &doc.Conversations[len(doc.Conversations)-1]
	}
	if conv.HasTelegramMessage(msg.MessageID) {
		return "duplicate"
	}

	created := now
	if !msg.Date.IsZero() {
		created = msg.Date.UTC()
	}
	tgID := msg.MessageID
	conv.Messages = append(conv.Messages, domain.SupportMessage{
		ID:                       "tg_" + strconv.FormatInt(msg.MessageID, 10),
		ConversationKey:          key,
		Role:                     domain.SupportRoleSupport,
		Source:                   domain.SupportSourceTelegram,
		Text:                     "[" + msg.SenderLabel() + "] " + text,
		CreatedAt:                created,
		TelegramMessageID:        &tgID,
		ReplyToTelegramMessageID: replyTo,
	})
	conv.UpdatedAt = now

	for _, k := range indexKeys(msg.ChatID, msg.ThreadID, msg.MessageID) {
		doc.TelegramMessageIndex[k] = key
	}
	return "saved"
}

// lookupReply resolves a reply through the index, trying the most specific
// composite key first.
func lookupReply(doc *domain.SupportChatsFile, chatID, threadID string, replyID int64) string {
	keys := indexKeys(chatID, threadID, replyID)
	for i := len(keys) - 1; i >= 0; i-- {
		if key, ok := doc.TelegramMessageIndex[keys[i]]; ok && key != "" {
			return key
		}
	}
	return ""
}

// Messages returns the conversation stored under key in chronological order.
// A sync is attempted first; its failure does not fail the read.
func (s *SupportService) Messages(ctx context.Context, key string) (*SupportThread, error) {
	ctx, span := startSpan(ctx, "SupportService", "Messages", attribute.String("support.conversation_key", key))
	defer span.End()

	if s.Channel != nil {
		if _, err := s.Sync(ctx); err != nil {
			log.Debug().Err(err).Msg("support sync before read failed")
		}
	}

	doc, err := s.Chats.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := &SupportThread{ConversationKey: key, Messages: []SupportMessageView{}}
	if conv := doc.Find(key); conv != nil {
		for _, m := range conv.Messages {
			out.Messages = append(out.Messages, SupportMessageView{ID: m.ID, Role: m.Role, Text: m.Text, CreatedAt: m.CreatedAt})
		}
	}
	sort.SliceStable(out.Messages, func(i, j int) bool {
		return out.Messages[i].CreatedAt.Before(out.Messages[j].CreatedAt)
	})
	return out, nil
}
