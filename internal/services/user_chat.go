// Package services - UserChatService
//
// This file implements direct messages between signed-in users. A
// conversation is keyed by the sorted pair of participant ids, so each pair
// has at most one. Opening a conversation marks the caller's unread
// messages read, writing only when something changed.

package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/repo"
)

// Placeholders used in inbox rows.
const (
	UnknownUser   = "Unknown user"
	NoMessagesYet = "No messages yet"
)

const (
	convIDPrefix    = "conv"
	chatMsgIDPrefix = "msg"
)

// UserChatService implements direct messages between two users. Each
// unordered pair of users shares exactly one conversation, created on the
// first message.
type UserChatService struct {
	Chats Table[domain.UserChatsFile]
	Users Table[domain.UsersFile]
	Now   func() time.Time
}

func NewUserChatService(chats Table[domain.UserChatsFile], users Table[domain.UsersFile]) *UserChatService {
	return &UserChatService{Chats: chats, Users: users, Now: time.Now}
}

// ListUsers returns every other user sorted by email.
func (s *UserChatService) ListUsers(ctx context.Context, excludeID string) ([]domain.PublicUser, error) {
	doc, err := s.Users.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.PublicUser{}
	for _, u := range doc.Users {
		if u.ID != excludeID {
			out = append(out, u.Public())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// Send stores a message from senderID to receiverID.
func (s *UserChatService) Send(ctx context.Context, senderID, receiverID, text string) (*domain.ChatMessage, error) {
	ctx, span := startSpan(ctx, "UserChatService", "Send",
		attribute.String("user.id", senderID),
		attribute.String("chat.partner_id", receiverID),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageRequired
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if _, err := s.userEmails(ctx, receiverID); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	var msg domain.ChatMessage
	err := s.Chats.Update(ctx, func(doc *domain.UserChatsFile) error {
		conv := findConversation(doc, senderID, receiverID)
		if conv == nil {
			doc.Conversations = append(doc.Conversations, domain.ChatConversation{
				ID:             makeChatID(convIDPrefix, now),
				ParticipantIDs: normalizePair(senderID, receiverID),
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			conv = &doc.Conversations[len(doc.Conversations)-1]
		} else {
			conv.UpdatedAt = now
		}
		msg = domain.ChatMessage{
			ID:             makeChatID(chatMsgIDPrefix, now),
			ConversationID: conv.ID,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Text:           text,
			CreatedAt:      now,
		}
		doc.Messages = append(doc.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Conversation returns the thread between userID and partnerID in
// chronological order and marks messages addressed to userID as read. The
// table is written only when at least one message changed.
func (s *UserChatService) Conversation(ctx context.Context, userID, partnerID string) (*domain.ConversationView, error) {
	ctx, span := startSpan(ctx, "UserChatService", "Conversation",
		attribute.String("user.id", userID),
		attribute.String("chat.partner_id", partnerID),
	)
	defer span.End()

	emails, err := s.userEmails(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	view := &domain.ConversationView{
		PartnerID:    partnerID,
		PartnerEmail: emails[partnerID],
		Messages:     []domain.ChatMessage{},
	}

	now := s.Now().UTC()
	err = s.Chats.Update(ctx, func(doc *domain.UserChatsFile) error {
		conv := findConversation(doc, userID, partnerID)
		if conv == nil {
			return repo.ErrNoChange
		}
		id := conv.ID
		view.ConversationID = &id

		touched := false
		for i := range doc.Messages {
			m := &doc.Messages[i]
			if m.ConversationID != id {
				continue
			}
			if m.ReceiverID == userID && m.ReadAt == nil {
				readAt := now
				m.ReadAt = &readAt
				touched = true
			}
			view.Messages = append(view.Messages, *m)
		}
		sort.SliceStable(view.Messages, func(i, j int) bool {
			return view.Messages[i].CreatedAt.Before(view.Messages[j].CreatedAt)
		})
		if !touched {
			return repo.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Inbox lists the conversations of userID, most recent activity first.
func (s *UserChatService) Inbox(ctx context.Context, userID string) ([]domain.InboxEntry, error) {
	ctx, span := startSpan(ctx, "UserChatService", "Inbox", attribute.String("user.id", userID))
	defer span.End()

	doc, err := s.Chats.Read(ctx)
	if err != nil {
		return nil, err
	}
	emails, err := s.userEmails(ctx, "")
	if err != nil {
		return nil, err
	}

	byConv := make(map[string][]domain.ChatMessage)
	for _, m := range doc.Messages {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}

	out := []domain.InboxEntry{}
	for _, c := range doc.Conversations {
		if !c.Has(userID) {
			continue
		}
		partner := c.Partner(userID)
		entry := domain.InboxEntry{
			ConversationID: c.ID,
			PartnerID:      partner,
			PartnerEmail:   emails[partner],
			LastMessage:    NoMessagesYet,
			LastMessageAt:  c.UpdatedAt,
		}
		if entry.PartnerEmail == "" {
			entry.PartnerEmail = UnknownUser
		}

		msgs := byConv[c.ID]
		var last *domain.ChatMessage
		for i := range msgs {
			m := &msgs[i]
			if last == nil || !m.CreatedAt.Before(last.CreatedAt) {
				last = m
			}
			if m.ReceiverID == userID && m.ReadAt == nil {
				entry.UnreadCount++
			}
		}
		if last != nil {
			entry.LastMessage = last.Text
			entry.LastMessageAt = last.CreatedAt
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

// userEmails maps user ids to emails. When mustExist is set and unknown,
// ErrRecipientNotFound is returned.
func (s *UserChatService) userEmails(ctx context.Context, mustExist string) (map[string]string, error) {
	doc, err := s.Users.Read(ctx)
	if err != nil {
		return nil, err
	}
	emails := make(map[string]string, len(doc.Users))
	for _, u := range doc.Users {
		emails[u.ID] = u.Email
	}
	if mustExist != "" {
		if _, ok := emails[mustExist]; !ok {
			return nil, ErrRecipientNotFound
		}
	}
	return emails, nil
}

func normalizePair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func findConversation(doc *domain.UserChatsFile, a, b string) *domain.ChatConversation {
	pair := normalizePair(a, b)
	for i := range doc.Conversations {
		if doc.Conversations[i].ParticipantIDs == pair {
			return &doc.Conversations[i]
		}
	}
	return nil
}

// makeChatID returns "<prefix>_<unix ms>_<8 hex chars>".
func makeChatID(prefix string, now time.Time) string {
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
