package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/models"

	"github.com/google/uuid"
)

var ErrChatNotFound = fmt.Errorf("chat %w", apperr.ErrNotFound)

// ChatStore persists chats and their messages. Chats are listed newest first,
// messages oldest first. Deleting a chat deletes its messages.
type ChatStore interface {
	CreateChat(ctx context.Context, name string) (models.Chat, error)
	ListChats(ctx context.Context) ([]models.Chat, error)
	GetChat(ctx context.Context, id string) (models.Chat, error)
	AddMessage(ctx context.Context, chatID string, msg models.Message) (models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteChat(ctx context.Context, id string) error
	Driver() string
	Close() error
}

// now is replaced in tests that need deterministic ordering.
var now = func() time.Time { return time.Now().UTC() }

// timestamp is the store clock at millisecond precision, the finest a BSON
// date holds, so every driver returns what it persisted.
func timestamp() time.Time {
	return now().Truncate(time.Millisecond)
}

func persistenceError(op string, err error) error {
	return apperr.New(apperr.ErrPersistence, op, err)
}

func newChat(name string) models.Chat {
	return models.NewChat(strings.TrimSpace(name), timestamp())
}

// prepareMessage fills the server-assigned fields of a message.
func prepareMessage(chatID string, msg models.Message) models.Message {
	msg.ID = uuid.New().String()
	msg.ChatID = chatID
	msg.CreatedAt = timestamp()
	return msg
}

// latest keeps updatedAt monotonic when the wall clock steps backwards.
func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func sortChatsNewestFirst(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
}

func sortMessagesOldestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
