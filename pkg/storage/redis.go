package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"audio-advisor/pkg/models"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; defaults to "audio-advisor".
	Prefix string
}

// addMessageScript appends a message only while the chat exists and moves the
// chat's updatedAt forward, all in one atomic step.
// KEYS: chat hash, message list. ARGV: message JSON, createdAt in unix ms.
var addMessageScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
local current = tonumber(redis.call('HGET', KEYS[1], 'updatedAt') or '0')
if current < tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'updatedAt', ARGV[2])
end
return 1
`)

// redisStore keeps each chat as a hash (timestamps in unix ms), a sorted set of
// chat ids by creation time and one list of JSON messages per chat.
type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (ChatStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.Prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *redisStore {
	if prefix == "" {
		prefix = "audio-advisor"
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) chatKey(id string) string     { return s.prefix + ":chat:" + id }
func (s *redisStore) messagesKey(id string) string { return s.prefix + ":chat:" + id + ":messages" }
func (s *redisStore) indexKey() string             { return s.prefix + ":chats" }

func decodeChatHash(id string, fields map[string]string) (models.Chat, error) {
	createdAt, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return models.Chat{}, fmt.Errorf("chat %s createdAt: %w", id, err)
	}
	updatedAt, err := strconv.ParseInt(fields["updatedAt"], 10, 64)
	if err != nil {
		return models.Chat{}, fmt.Errorf("chat %s updatedAt: %w", id, err)
	}
	return models.Chat{
		ID:        id,
		Name:      fields["name"],
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func (s *redisStore) CreateChat(ctx context.Context, name string) (models.Chat, error) {
	chat := newChat(name)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.chatKey(chat.ID),
			"name", chat.Name,
			"createdAt", chat.CreatedAt.UnixMilli(),
			"updatedAt", chat.UpdatedAt.UnixMilli(),
		)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(chat.CreatedAt.UnixMilli()), Member: chat.ID})
		return nil
	})
	if err != nil {
		return models.Chat{}, persistenceError("create chat", err)
	}
	return chat, nil
}

func (s *redisStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, persistenceError("list chats", err)
	}
	chats := make([]models.Chat, 0, len(ids))
	if len(ids) == 0 {
		return chats, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.chatKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("list chats", err)
	}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		chat, err := decodeChatHash(ids[i], fields)
		if err != nil {
			return nil, persistenceError("list chats", err)
		}
		chats = append(chats, chat)
	}
	sortChatsNewestFirst(chats)
	return chats, nil
}

func (s *redisStore) GetChat(ctx context.Context, id string) (models.Chat, error) {
	fields, err := s.client.HGetAll(ctx, s.chatKey(id)).Result()
	if err != nil {
		return models.Chat{}, persistenceError("get chat", err)
	}
	if len(fields) == 0 {
		return models.Chat{}, ErrChatNotFound
	}
	chat, err := decodeChatHash(id, fields)
	if err != nil {
		return models.Chat{}, persistenceError("get chat", err)
	}
	return chat, nil
}

func (s *redisStore) AddMessage(ctx context.Context, chatID string, msg models.Message) (models.Message, error) {
	msg = prepareMessage(chatID, msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, persistenceError("add message", err)
	}

	added, err := addMessageScript.Run(ctx, s.client,
		[]string{s.chatKey(chatID), s.messagesKey(chatID)},
		data, msg.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return models.Message{}, persistenceError("add message", err)
	}
	if added == 0 {
		return models.Message{}, ErrChatNotFound
	}
	return msg, nil
}

func (s *redisStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	values, err := s.client.LRange(ctx, s.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	msgs := make([]models.Message, 0, len(values))
	for _, raw := range values {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, persistenceError("list messages", err)
		}
		msgs = append(msgs, msg)
	}
	sortMessagesOldestFirst(msgs)
	return msgs, nil
}

func (s *redisStore) DeleteChat(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.chatKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		pipe.Del(ctx, s.messagesKey(id))
		return nil
	})
	if err != nil {
		return persistenceError("delete chat", err)
	}
	if deleted.Val() == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *redisStore) Driver() string { return "redis" }

func (s *redisStore) Close() error {
	return s.client.Close()
}
