package storage

import (
	"context"
	"sync"

	"audio-advisor/pkg/models"
)

type memoryStore struct {
	chats    map[string]models.Chat
	messages map[string][]models.Message
	mu       sync.RWMutex
}

func NewMemoryStore() ChatStore {
	return &memoryStore{
		chats:    make(map[string]models.Chat),
		messages: make(map[string][]models.Message),
	}
}

func (s *memoryStore) CreateChat(ctx context.Context, name string) (models.Chat, error) {
	chat := newChat(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *memoryStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]models.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, chat)
	}
	sortChatsNewestFirst(chats)
	return chats, nil
}

func (s *memoryStore) GetChat(ctx context.Context, id string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.chats[id]
	if !exists {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

func (s *memoryStore) AddMessage(ctx context.Context, chatID string, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.chats[chatID]
	if !exists {
		return models.Message{}, ErrChatNotFound
	}

	msg = prepareMessage(chatID, msg)
	s.messages[chatID] = append(s.messages[chatID], msg)

	chat.UpdatedAt = latest(chat.UpdatedAt, msg.CreatedAt)
	s.chats[chatID] = chat
	return msg, nil
}

func (s *memoryStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]models.Message, len(s.messages[chatID]))
	copy(msgs, s.messages[chatID])
	sortMessagesOldestFirst(msgs)
	return msgs, nil
}

func (s *memoryStore) DeleteChat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[id]; !exists {
		return ErrChatNotFound
	}
	delete(s.chats, id)
	delete(s.messages, id)
	return nil
}

func (s *memoryStore) Driver() string { return "memory" }

func (s *memoryStore) Close() error { return nil }
