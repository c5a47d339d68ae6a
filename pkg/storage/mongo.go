package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"audio-advisor/pkg/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

type chatDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d chatDocument) model() models.Chat {
	return models.Chat{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	ChatID    string             `bson:"chatId"`
	Role      string             `bson:"role"`
	Text      string             `bson:"text"`
	Audio     string             `bson:"audio,omitempty"`
	AudioID   string             `bson:"audioId,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d messageDocument) model() models.Message {
	return models.Message{
		ID:        d.ID.Hex(),
		ChatID:    d.ChatID,
		Role:      models.Role(d.Role),
		Text:      d.Text,
		Audio:     d.Audio,
		AudioID:   d.AudioID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// mongoStore uses the chats/messages collections the mobile client already reads,
// so chat ids are ObjectID hex strings and messages reference them by that string.
type mongoStore struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (ChatStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &mongoStore{
		client:   client,
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
	}

	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create message index: %w", err)
	}
	return s, nil
}

// A malformed id cannot name a stored chat, so it reads as not found.
func parseChatID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrChatNotFound
	}
	return oid, nil
}

func (s *mongoStore) CreateChat(ctx context.Context, name string) (models.Chat, error) {
	chat := newChat(name)
	doc := chatDocument{
		ID:        primitive.NewObjectID(),
		Name:      chat.Name,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return models.Chat{}, persistenceError("create chat", err)
	}
	chat.ID = doc.ID.Hex()
	return chat, nil
}

func (s *mongoStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.chats.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, persistenceError("list chats", err)
	}
	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceError("list chats", err)
	}

	chats := make([]models.Chat, 0, len(docs))
	for _, doc := range docs {
		chats = append(chats, doc.model())
	}
	return chats, nil
}

func (s *mongoStore) GetChat(ctx context.Context, id string) (models.Chat, error) {
	oid, err := parseChatID(id)
	if err != nil {
		return models.Chat{}, err
	}
	var doc chatDocument
	err = s.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, persistenceError("get chat", err)
	}
	return doc.model(), nil
}

// AddMessage bumps the chat first so an unknown chat is detected by the match
// count; the message insert follows as a separate write. $max keeps updatedAt
// from moving backwards under concurrent posts.
func (s *mongoStore) AddMessage(ctx context.Context, chatID string, msg models.Message) (models.Message, error) {
	oid, err := parseChatID(chatID)
	if err != nil {
		return models.Message{}, err
	}

	msg = prepareMessage(chatID, msg)
	res, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$max": bson.M{"updatedAt": msg.CreatedAt}},
	)
	if err != nil {
		return models.Message{}, persistenceError("add message", err)
	}
	if res.MatchedCount == 0 {
		return models.Message{}, ErrChatNotFound
	}

	doc := messageDocument{
		ID:        primitive.NewObjectID(),
		ChatID:    chatID,
		Role:      string(msg.Role),
		Text:      msg.Text,
		Audio:     msg.Audio,
		AudioID:   msg.AudioID,
		CreatedAt: msg.CreatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return models.Message{}, persistenceError("add message", err)
	}
	msg.ID = doc.ID.Hex()
	return msg, nil
}

func (s *mongoStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceError("list messages", err)
	}

	msgs := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msgs = append(msgs, doc.model())
	}
	return msgs, nil
}

func (s *mongoStore) DeleteChat(ctx context.Context, id string) error {
	oid, err := parseChatID(id)
	if err != nil {
		return err
	}
	res, err := s.chats.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return persistenceError("delete chat", err)
	}
	if res.DeletedCount == 0 {
		return ErrChatNotFound
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"chatId": id}); err != nil {
		return persistenceError("delete chat messages", err)
	}
	return nil
}

func (s *mongoStore) Driver() string { return "mongo" }

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
