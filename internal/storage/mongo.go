package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fundify-chat/internal/chat"
	"fundify-chat/internal/profile"
)

const (
	roomsCollection    = "chats"
	messagesCollection = "messages"
	profilesCollection = "userprofiles"
)

type roomDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ChatRoomID string             `bson:"chatRoomId"`
	Users      []string           `bson:"users"`
	Label      string             `bson:"label"`
	CreatedBy  string             `bson:"createdBy"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

type messageDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ChatRoomID string             `bson:"chatRoomId"`
	Sender     string             `bson:"sender"`
	Receiver   string             `bson:"receiver,omitempty"`
	Message    string             `bson:"message"`
	Timestamp  time.Time          `bson:"timestamp"`
}

type profileDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Wallet string             `bson:"wallet"`
	Name   string             `bson:"name"`
	Bio    string             `bson:"bio"`
}

func (d roomDoc) toRoom() chat.Room {
	return chat.Room{
		ID:        d.ChatRoomID,
		Users:     d.Users,
		Label:     d.Label,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (d messageDoc) toMessage() chat.Message {
	return chat.Message{
		ID:         d.ID.Hex(),
		ChatRoomID: d.ChatRoomID,
		Sender:     d.Sender,
		Receiver:   d.Receiver,
		Body:       d.Message,
		Timestamp:  d.Timestamp.UTC(),
	}
}

// MongoStore keeps the collection layout of the campaign backend so both can
// share a database.
type MongoStore struct {
	client   *mongo.Client
	rooms    *mongo.Collection
	messages *mongo.Collection
	profiles *mongo.Collection
}

type MongoOptions struct {
	URI      string
	Database string
	Timeout  time.Duration
}

func OpenMongo(ctx context.Context, o MongoOptions) (*MongoStore, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(o.URI).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	database := client.Database(o.Database)
	s := &MongoStore{
		client:   client,
		rooms:    database.Collection(roomsCollection),
		messages: database.Collection(messagesCollection),
		profiles: database.Collection(profilesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatRoomId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "users", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("index %s: %w", roomsCollection, err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatRoomId", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return fmt.Errorf("index %s: %w", messagesCollection, err)
	}
	if _, err := s.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "wallet", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("index %s: %w", profilesCollection, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) FindRoom(ctx context.Context, id string) (*chat.Room, error) {
	var doc roomDoc
	err := s.rooms.FindOne(ctx, bson.M{"chatRoomId": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	room := doc.toRoom()
	return &room, nil
}

// InsertRoom maps the unique chatRoomId index violation to ErrRoomExists.
func (s *MongoStore) InsertRoom(ctx context.Context, room *chat.Room) error {
	_, err := s.rooms.InsertOne(ctx, roomDoc{
		ChatRoomID: room.ID,
		Users:      room.Users,
		Label:      room.Label,
		CreatedBy:  room.CreatedBy,
		CreatedAt:  room.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return chat.ErrRoomExists
	}
	return err
}

func (s *MongoStore) ListRoomsByParticipant(ctx context.Context, wallet string) ([]chat.Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{"users": wallet},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	rooms := []chat.Room{}
	for cur.Next(ctx) {
		var doc roomDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rooms = append(rooms, doc.toRoom())
	}
	return rooms, cur.Err()
}

func (s *MongoStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	doc := messageDoc{
		ID:         primitive.NewObjectID(),
		ChatRoomID: msg.ChatRoomID,
		Sender:     msg.Sender,
		Receiver:   msg.Receiver,
		Message:    msg.Body,
		Timestamp:  msg.Timestamp,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return err
	}
	msg.ID = doc.ID.Hex()
	return nil
}

// History sorts by timestamp and breaks ties on _id, which grows with
// insertion on a single writer.
func (s *MongoStore) History(ctx context.Context, roomID string) ([]chat.Message, error) {
	cur, err := s.messages.Find(ctx, bson.M{"chatRoomId": roomID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	messages := []chat.Message{}
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		messages = append(messages, doc.toMessage())
	}
	return messages, cur.Err()
}

func (s *MongoStore) GetProfile(ctx context.Context, wallet string) (*profile.Profile, error) {
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.M{"wallet": wallet}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile.Profile{Wallet: doc.Wallet, Name: doc.Name, Bio: doc.Bio}, nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, p *profile.Profile) error {
	_, err := s.profiles.UpdateOne(ctx,
		bson.M{"wallet": p.Wallet},
		bson.M{"$set": bson.M{"name": p.Name, "bio": p.Bio}},
		options.Update().SetUpsert(true),
	)
	return err
}
