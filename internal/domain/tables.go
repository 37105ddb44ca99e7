package domain

// The types below are the top-level documents of each table file. Normalize
// replaces nil collections so files always contain [] and {} rather than null.

type UsersFile struct {
	Users []User `json:"users"`
}

func (f *UsersFile) Normalize() {
	if f.Users == nil {
		f.Users = []User{}
	}
}

type PostsFile struct {
	Posts []Post `json:"posts"`
}

func (f *PostsFile) Normalize() {
	if f.Posts == nil {
		f.Posts = []Post{}
	}
	for i := range f.Posts {
		if f.Posts[i].Images == nil {
			f.Posts[i].Images = []string{}
		}
	}
}

type OrdersFile struct {
	Orders []Order `json:"orders"`
}

func (f *OrdersFile) Normalize() {
	if f.Orders == nil {
		f.Orders = []Order{}
	}
}

type SessionsFile struct {
	Sessions []Session `json:"sessions"`
}

func (f *SessionsFile) Normalize() {
	if f.Sessions == nil {
		f.Sessions = []Session{}
	}
}

type UserChatsFile struct {
	Conversations []ChatConversation `json:"conversations"`
	Messages      []ChatMessage      `json:"messages"`
}

func (f *UserChatsFile) Normalize() {
	if f.Conversations == nil {
		f.Conversations = []ChatConversation{}
	}
	if f.Messages == nil {
		f.Messages = []ChatMessage{}
	}
}

// SupportChatsFile holds support conversations plus the index from composite
// Telegram message keys ("msgId", "chatId:msgId", "chatId:threadId:msgId")
// to conversation keys.
type SupportChatsFile struct {
	Conversations        []SupportConversation `json:"conversations"`
	TelegramMessageIndex map[string]string     `json:"telegramMessageIndex"`
}

func (f *SupportChatsFile) Normalize() {
	if f.Conversations == nil {
		f.Conversations = []SupportConversation{}
	}
	for i := range f.Conversations {
		if f.Conversations[i].Messages == nil {
			f.Conversations[i].Messages = []SupportMessage{}
		}
	}
	if f.TelegramMessageIndex == nil {
		f.TelegramMessageIndex = map[string]string{}
	}
}

// Find returns the conversation stored under key, or nil.
func (f *SupportChatsFile) Find(key string) *SupportConversation {
	for i := range f.Conversations {
		if f.Conversations[i].Key == key {
			return &f.Conversations[i]
		}
	}
	return nil
}

func (f *SupportBotState) Normalize() {
	if f.LastUpdateID < 0 {
		f.LastUpdateID = 0
	}
}
