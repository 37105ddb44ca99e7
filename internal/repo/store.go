package repo

import (
	"path/filepath"

	"github.com/samrith-ratana/e-commerce/internal/domain"
)

// File names of the tables inside the data directory.
const (
	UsersFile           = "users.json"
	PostsFile           = "posts.json"
	OrdersFile          = "orders.json"
	SessionsFile        = "sessions.json"
	UserChatsFile       = "user-chats.json"
	SupportChatsFile    = "support-chats.json"
	SupportBotStateFile = "support-bot-state.json"
)

// Store groups every table of the marketplace. Construct it once per process;
// the per-table locks only serialize callers sharing the same Store.
type Store struct {
	Users        *Table[domain.UsersFile]
	Posts        *Table[domain.PostsFile]
	Orders       *Table[domain.OrdersFile]
	Sessions     *Table[domain.SessionsFile]
	UserChats    *Table[domain.UserChatsFile]
	SupportChats *Table[domain.SupportChatsFile]
	SupportBot   *Table[domain.SupportBotState]
}

// OpenStore returns a Store whose files live in dir. Nothing touches the
// disk until a table is first used.
func OpenStore(dir string) *Store {
	p := func(name string) string { return filepath.Join(dir, name) }
	return &Store{
		Users:        NewTable(p(UsersFile), func() domain.UsersFile { return domain.UsersFile{} }),
		Posts:        NewTable(p(PostsFile), func() domain.PostsFile { return domain.PostsFile{} }),
		Orders:       NewTable(p(OrdersFile), func() domain.OrdersFile { return domain.OrdersFile{} }),
		Sessions:     NewTable(p(SessionsFile), func() domain.SessionsFile { return domain.SessionsFile{} }),
		UserChats:    NewTable(p(UserChatsFile), func() domain.UserChatsFile { return domain.UserChatsFile{} }),
		SupportChats: NewTable(p(SupportChatsFile), func() domain.SupportChatsFile { return domain.SupportChatsFile{} }),
		SupportBot:   NewTable(p(SupportBotStateFile), func() domain.SupportBotState { return domain.SupportBotState{} }),
	}
}
