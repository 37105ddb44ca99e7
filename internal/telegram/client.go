// Package telegram adapts the Telegram Bot API to the support channel used by
// services.SupportService.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/samrith-ratana/e-commerce/internal/services"
)

var allowedUpdates = []string{"message", "edited_message", "channel_post", "edited_channel_post"}

// Client sends support messages and polls replies. The first poll removes
// any configured webhook so getUpdates is allowed.
type Client struct {
	bot         *tgbotapi.BotAPI
	pollingOnce sync.Once
}

var _ services.SupportChannel = (*Client)(nil)

// New authorizes token against endpoint (tgbotapi.APIEndpoint when empty).
// A nil httpClient gets a client with timeout.
func New(token, endpoint string, httpClient tgbotapi.HTTPClient, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram authorize: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return &Client{bot: bot}, nil
}

func (c *Client) Send(ctx context.Context, chatID, threadID, text string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params["chat_id"] = chatID
	params["text"] = text
	params.AddBool("disable_web_page_preview", true)
	params.AddNonEmpty("message_thread_id", threadID)

	resp, err := c.bot.MakeRequest("sendMessage", params)
	if err != nil {
		return 0, err
	}
	var sent message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode sendMessage: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) PollUpdates(ctx context.Context, offset int64, limit, timeout int) ([]services.InboundUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.pollingOnce.Do(func() {
		params := tgbotapi.Params{}
		params["drop_pending_updates"] = "false"
		if _, err := c.bot.MakeRequest("deleteWebhook", params); err != nil {
			log.Debug().Err(err).Msg("telegram deleteWebhook failed")
		}
	})

	params := tgbotapi.Params{}
	params.AddNonZero64("offset", offset)
	params.AddNonZero("limit", limit)
	params["timeout"] = strconv.Itoa(timeout)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return nil, err
	}

	resp, err := c.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var raw []update
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}

	out := make([]services.InboundUpdate, 0, len(raw))
	for _, u := range raw {
		out = append(out, services.InboundUpdate{UpdateID: u.UpdateID, Message: u.message().inbound()})
	}
	return out, nil
}

// Wire shapes. tgbotapi.Message predates forum topics, so the fields the
// bridge needs are decoded here.
type update struct {
	UpdateID          int64    `json:"update_id"`
	Message           *message `json:"message"`
	EditedMessage     *message `json:"edited_message"`
	ChannelPost       *message `json:"channel_post"`
	EditedChannelPost *message `json:"edited_channel_post"`
}

func (u update) message() *message {
	for _, m := range []*message{u.Message, u.EditedMessage, u.ChannelPost, u.EditedChannelPost} {
		if m != nil {
			return m
		}
	}
	return nil
}

type message struct {
	MessageID       int64    `json:"message_id"`
	MessageThreadID int64    `json:"message_thread_id"`
	Date            int64    `json:"date"`
	Text            string   `json:"text"`
	Caption         string   `json:"caption"`
	From            *user    `json:"from"`
	Chat            *chat    `json:"chat"`
	SenderChat      *chat    `json:"sender_chat"`
	ReplyToMessage  *message `json:"reply_to_message"`
}

type user struct {
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type chat struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

func (m *message) inbound() *services.InboundMessage {
	if m == nil {
		return nil
	}
	in := &services.InboundMessage{
		MessageID: m.MessageID,
		Text:      m.Text,
		Caption:   m.Caption,
	}
	if m.MessageThreadID != 0 {
		in.ThreadID = strconv.FormatInt(m.MessageThreadID, 10)
	}
	if m.Date > 0 {
		in.Date = time.Unix(m.Date, 0).UTC()
	}
	if m.Chat != nil {
		in.ChatID = strconv.FormatInt(m.Chat.ID, 10)
	}
	if m.From != nil {
		in.FromBot = m.From.IsBot
		in.FromUsername = m.From.Username
		in.FromFirstName = m.From.FirstName
		in.FromLastName = m.From.LastName
	}
	if m.SenderChat != nil {
		in.SenderChatTitle = m.SenderChat.Title
		in.SenderChatUsername = m.SenderChat.Username
	}
	if r := m.ReplyToMessage; r != nil {
		in.ReplyTo = &services.InboundReply{MessageID: r.MessageID, Text: r.Text, Caption: r.Caption}
	}
	return in
}
