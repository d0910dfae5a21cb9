package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const roomsCollection = "rooms"

type participantDoc struct {
	UserID     string    `bson:"userId"`
	Username   string    `bson:"username"`
	ConnID     string    `bson:"connId"`
	JoinedAt   time.Time `bson:"joinedAt"`
	IsMuted    bool      `bson:"isMuted"`
	IsVideoOff bool      `bson:"isVideoOff"`
}

type roomDoc struct {
	RoomID          string           `bson:"roomId"`
	RoomName        string           `bson:"roomName"`
	CreatedBy       string           `bson:"createdBy"`
	Participants    []participantDoc `bson:"participants"`
	MaxParticipants int              `bson:"maxParticipants"`
	IsActive        bool             `bson:"isActive"`
	CreatedAt       time.Time        `bson:"createdAt"`
	Version         int64            `bson:"version"`
}

func (d roomDoc) toDomain() domain.Room {
	r := domain.Room{
		ID:           domain.RoomID(d.RoomID),
		Name:         d.RoomName,
		Capacity:     d.MaxParticipants,
		CreatedBy:    domain.UserID(d.CreatedBy),
		Active:       d.IsActive,
		CreatedAt:    d.CreatedAt,
		Version:      d.Version,
		Participants: make([]domain.Participant, 0, len(d.Participants)),
	}
	for _, p := range d.Participants {
		r.Participants = append(r.Participants, domain.Participant{
			UserID:     domain.UserID(p.UserID),
			Username:   p.Username,
			ConnID:     domain.ConnID(p.ConnID),
			JoinedAt:   p.JoinedAt,
			IsMuted:    p.IsMuted,
			IsVideoOff: p.IsVideoOff,
		})
	}
	return r
}

// MongoLedger keeps rooms in a MongoDB collection. Capacity and membership
// checks are expressed inside the update filters so each mutation is a
// single conditional document update.
type MongoLedger struct {
	client *mongo.Client
	rooms  *mongo.Collection
	now    func() time.Time
}

// NewMongoLedger connects to uri and ensures the unique roomId index.
func NewMongoLedger(ctx context.Context, uri, database string) (*MongoLedger, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	coll := client.Database(database).Collection(roomsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: index: %v", ErrUnavailable, err)
	}
	log.Info().Str("module", "ledger.mongo").Str("database", database).Msg("connected")
	return &MongoLedger{client: client, rooms: coll, now: time.Now}, nil
}

// joinFilter matches the room only while it is active, has a free seat and
// does not already hold user.
func joinFilter(id domain.RoomID, user domain.UserID) bson.M {
	return bson.M{
		"roomId":              string(id),
		"isActive":            true,
		"participants.userId": bson.M{"$ne": string(user)},
		"$expr":               bson.M{"$lt": bson.A{bson.M{"$size": "$participants"}, "$maxParticipants"}},
	}
}

func reconnectFilter(id domain.RoomID, user domain.UserID) bson.M {
	return bson.M{"roomId": string(id), "isActive": true, "participants.userId": string(user)}
}

// leaveFilter needs both ids so a stale connection cannot evict a
// reconnected entry.
func leaveFilter(id domain.RoomID, user domain.UserID, conn domain.ConnID) bson.M {
	return bson.M{
		"roomId":       string(id),
		"participants": bson.M{"$elemMatch": bson.M{"userId": string(user), "connId": string(conn)}},
	}
}

func emptyRoomFilter(id domain.RoomID) bson.M {
	return bson.M{"roomId": string(id), "participants": bson.M{"$size": 0}}
}

func wrapMongo(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (l *MongoLedger) Create(ctx context.Context, name string, capacity int, creator domain.UserID) (domain.Room, error) {
	name, err := domain.ValidateRoomName(name)
	if err != nil {
		return domain.Room{}, err
	}
	capacity, err = domain.ValidateCapacity(capacity)
	if err != nil {
		return domain.Room{}, err
	}
	doc := roomDoc{
		RoomName:        name,
		CreatedBy:       string(creator),
		Participants:    []participantDoc{},
		MaxParticipants: capacity,
		IsActive:        true,
		CreatedAt:       l.now().UTC().Truncate(time.Millisecond),
		Version:         1,
	}
	for attempt := 0; attempt < 3; attempt++ {
		doc.RoomID = string(domain.NewRoomID())
		_, err = l.rooms.InsertOne(ctx, doc)
		if err == nil {
			log.Info().Str("module", "ledger.mongo").Str("room_id", doc.RoomID).Int("capacity", capacity).Msg("room created")
			return doc.toDomain(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return domain.Room{}, wrapMongo("create", err)
		}
	}
	return domain.Room{}, wrapMongo("create", err)
}

func (l *MongoLedger) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var doc roomDoc
	err := l.rooms.FindOne(ctx, bson.M{"roomId": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, wrapMongo("get", err)
	}
	return doc.toDomain(), nil
}

func (l *MongoLedger) List(ctx context.Context) ([]domain.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "roomId", Value: 1}})
	cur, err := l.rooms.Find(ctx, bson.M{"isActive": true}, opts)
	if err != nil {
		return nil, wrapMongo("list", err)
	}
	var docs []roomDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapMongo("list", err)
	}
	out := make([]domain.Room, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// reconnect swaps the connection id of an existing (room, user) entry.
func (l *MongoLedger) reconnect(ctx context.Context, id domain.RoomID, p domain.Participant) (JoinResult, bool, error) {
	filter := reconnectFilter(id, p.UserID)
	set := bson.M{"participants.$.connId": string(p.ConnID)}
	if p.Username != "" {
		set["participants.$.username"] = p.Username
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before roomDoc
	err := l.rooms.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return JoinResult{}, false, nil
	}
	if err != nil {
		return JoinResult{}, false, wrapMongo("reconnect", err)
	}

	room := before.toDomain()
	room.Version++
	var prev domain.ConnID
	for i := range room.Participants {
		if room.Participants[i].UserID == p.UserID {
			prev = room.Participants[i].ConnID
			room.Participants[i].ConnID = p.ConnID
			if p.Username != "" {
				room.Participants[i].Username = p.Username
			}
		}
	}
	return JoinResult{Room: room, Reconnected: true, PreviousConn: prev}, true, nil
}

func (l *MongoLedger) Join(ctx context.Context, id domain.RoomID, p domain.Participant) (JoinResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res, ok, err := l.reconnect(ctx, id, p)
		if err != nil {
			return JoinResult{}, err
		}
		if ok {
			log.Info().Str("module", "ledger.mongo").Str("room_id", string(id)).Str("user", string(p.UserID)).Msg("participant reconnected")
			return res, nil
		}

		entry := participantDoc{
			UserID:     string(p.UserID),
			Username:   p.Username,
			ConnID:     string(p.ConnID),
			JoinedAt:   l.now().UTC().Truncate(time.Millisecond),
			IsMuted:    p.IsMuted,
			IsVideoOff: p.IsVideoOff,
		}
		update := bson.M{"$push": bson.M{"participants": entry}, "$inc": bson.M{"version": 1}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var after roomDoc
		err = l.rooms.FindOneAndUpdate(ctx, joinFilter(id, p.UserID), update, opts).Decode(&after)
		if err == nil {
			log.Info().Str("module", "ledger.mongo").Str("room_id", string(id)).Str("user", string(p.UserID)).Int("count", len(after.Participants)).Msg("participant added")
			return JoinResult{Room: after.toDomain()}, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return JoinResult{}, wrapMongo("join", err)
		}

		// No match: the room is missing, full, or the user raced in on
		// another connection.
		cur, err := l.Get(ctx, id)
		if err != nil {
			return JoinResult{}, err
		}
		if !cur.Active {
			return JoinResult{}, domain.ErrRoomNotFound
		}
		if _, present := cur.Find(p.UserID); present {
			continue
		}
		return JoinResult{}, domain.ErrRoomFull
	}
	return JoinResult{}, domain.ErrRoomFull
}

func (l *MongoLedger) Leave(ctx context.Context, id domain.RoomID, user domain.UserID, conn domain.ConnID) (LeaveResult, error) {
	update := bson.M{
		"$pull": bson.M{"participants": bson.M{"userId": string(user), "connId": string(conn)}},
		"$inc":  bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var after roomDoc
	err := l.rooms.FindOneAndUpdate(ctx, leaveFilter(id, user, conn), update, opts).Decode(&after)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cur, gerr := l.Get(ctx, id)
		if gerr != nil {
			return LeaveResult{}, gerr
		}
		return LeaveResult{Room: cur}, nil
	}
	if err != nil {
		return LeaveResult{}, wrapMongo("leave", err)
	}

	res := LeaveResult{Room: after.toDomain(), Removed: true}
	if len(after.Participants) == 0 {
		del, err := l.rooms.DeleteOne(ctx, emptyRoomFilter(id))
		if err != nil {
			return LeaveResult{}, wrapMongo("leave cleanup", err)
		}
		res.Deleted = del.DeletedCount == 1
		if res.Deleted {
			log.Info().Str("module", "ledger.mongo").Str("room_id", string(id)).Msg("room deleted (empty)")
		}
	}
	return res, nil
}

func (l *MongoLedger) SetFlags(ctx context.Context, id domain.RoomID, user domain.UserID, f Flags) (domain.Room, error) {
	set := bson.M{}
	if f.Muted != nil {
		set["participants.$.isMuted"] = *f.Muted
	}
	if f.VideoOff != nil {
		set["participants.$.isVideoOff"] = *f.VideoOff
	}
	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		update["$set"] = set
	}
	filter := bson.M{"roomId": string(id), "participants.userId": string(user)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var after roomDoc
	err := l.rooms.FindOneAndUpdate(ctx, filter, update, opts).Decode(&after)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := l.Get(ctx, id); gerr != nil {
			return domain.Room{}, gerr
		}
		return domain.Room{}, domain.ErrNotAuthorized
	}
	if err != nil {
		return domain.Room{}, wrapMongo("set flags", err)
	}
	return after.toDomain(), nil
}

func (l *MongoLedger) Update(ctx context.Context, id domain.RoomID, requester domain.UserID, patch RoomPatch) (domain.Room, error) {
	set := bson.M{}
	filter := bson.M{"roomId": string(id), "createdBy": string(requester)}
	if patch.Name != nil {
		name, err := domain.ValidateRoomName(*patch.Name)
		if err != nil {
			return domain.Room{}, err
		}
		set["roomName"] = name
	}
	if patch.Capacity != nil {
		c, err := domain.ValidateCapacity(*patch.Capacity)
		if err != nil {
			return domain.Room{}, err
		}
		set["maxParticipants"] = c
		filter["$expr"] = bson.M{"$lte": bson.A{bson.M{"$size": "$participants"}, c}}
	}
	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		update["$set"] = set
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var after roomDoc
	err := l.rooms.FindOneAndUpdate(ctx, filter, update, opts).Decode(&after)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cur, gerr := l.Get(ctx, id)
		if gerr != nil {
			return domain.Room{}, gerr
		}
		if cur.CreatedBy != requester {
			return domain.Room{}, domain.ErrNotAuthorized
		}
		return domain.Room{}, domain.ErrInvalidCapacity
	}
	if err != nil {
		return domain.Room{}, wrapMongo("update", err)
	}
	return after.toDomain(), nil
}

func (l *MongoLedger) Delete(ctx context.Context, id domain.RoomID, requester domain.UserID) (domain.Room, error) {
	var doc roomDoc
	err := l.rooms.FindOneAndDelete(ctx, bson.M{"roomId": string(id), "createdBy": string(requester)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := l.Get(ctx, id); gerr != nil {
			return domain.Room{}, gerr
		}
		return domain.Room{}, domain.ErrNotAuthorized
	}
	if err != nil {
		return domain.Room{}, wrapMongo("delete", err)
	}
	room := doc.toDomain()
	room.Version++
	log.Info().Str("module", "ledger.mongo").Str("room_id", string(id)).Msg("room deleted by creator")
	return room, nil
}

func (l *MongoLedger) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}
