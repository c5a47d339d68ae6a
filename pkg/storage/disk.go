package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"audio-advisor/pkg/models"

	"github.com/dgraph-io/badger/v3"
)

const (
	chatPrefix    = "chat/"
	messagePrefix = "msg/"
)

// diskStore keeps chats and messages as JSON documents in badger. Message keys
// embed the creation time so a prefix scan returns them oldest first.
//
// Transactions that rewrite a chat record are serialised by mu; badger would
// otherwise abort all but one concurrent writer with ErrConflict.
type diskStore struct {
	db *badger.DB
	mu sync.Mutex
}

func NewDiskStore(path string) (ChatStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &diskStore{db: db}, nil
}

func chatKey(id string) []byte {
	return []byte(chatPrefix + id)
}

func messagesPrefix(chatID string) []byte {
	return []byte(messagePrefix + chatID + "/")
}

func messageKey(msg models.Message) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", messagePrefix, msg.ChatID, msg.CreatedAt.UnixNano(), msg.ID))
}

func (s *diskStore) CreateChat(ctx context.Context, name string) (models.Chat, error) {
	chat := newChat(name)
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, chatKey(chat.ID), chat)
	})
	if err != nil {
		return models.Chat{}, persistenceError("create chat", err)
	}
	return chat, nil
}

func (s *diskStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	chats := []models.Chat{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(chatPrefix), func(val []byte) error {
			var chat models.Chat
			if err := json.Unmarshal(val, &chat); err != nil {
				return err
			}
			chats = append(chats, chat)
			return nil
		})
	})
	if err != nil {
		return nil, persistenceError("list chats", err)
	}
	sortChatsNewestFirst(chats)
	return chats, nil
}

func (s *diskStore) GetChat(ctx context.Context, id string) (models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(id), &chat)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, persistenceError("get chat", err)
	}
	return chat, nil
}

// AddMessage writes the message and bumps the chat's updatedAt in one transaction.
func (s *diskStore) AddMessage(ctx context.Context, chatID string, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg = prepareMessage(chatID, msg)
	err := s.db.Update(func(txn *badger.Txn) error {
		var chat models.Chat
		if err := getJSON(txn, chatKey(chatID), &chat); err != nil {
			return err
		}
		if err := putJSON(txn, messageKey(msg), msg); err != nil {
			return err
		}
		chat.UpdatedAt = latest(chat.UpdatedAt, msg.CreatedAt)
		return putJSON(txn, chatKey(chatID), chat)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, persistenceError("add message", err)
	}
	return msg, nil
}

func (s *diskStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, messagesPrefix(chatID), func(val []byte) error {
			var msg models.Message
			if err := json.Unmarshal(val, &msg); err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	})
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	return msgs, nil
}

func (s *diskStore) DeleteChat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(chatKey(id)); err != nil {
			return err
		}

		keys := [][]byte{chatKey(id)}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := messagesPrefix(id)
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return persistenceError("delete chat", err)
	}
	return nil
}

func (s *diskStore) Driver() string { return "badger" }

func (s *diskStore) Close() error {
	return s.db.Close()
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
