package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMailboxRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoMailboxRepo(db *mongo.Database) *MongoMailboxRepo {
	r := &MongoMailboxRepo{col: db.Collection("mailboxes"), now: time.Now}
	_, _ = r.col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "partner", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("owner_partner_uq"),
		},
		{
			// accelerates the partner scan done by the collector
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "partner", Value: 1}, {Key: "messages", Value: 1}},
			Options: options.Index().SetName("pair_messages_idx"),
		},
	})
	return r
}

func pairFilter(owner, partner string) bson.M {
	return bson.M{"owner": owner, "partner": partner}
}

// mailboxWriter is the part of *mongo.Collection that Append needs.
type mailboxWriter interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

func (r *MongoMailboxRepo) Append(ctx context.Context, owner, partner, messageID string, isReceiver bool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return appendRef(ctx, r.col, owner, partner, messageID, isReceiver, r.now().UTC())
}

func appendUpdate(messageID string, isReceiver bool, now time.Time) bson.M {
	onInsert := bson.M{"truncation_boundary": time.Time{}}
	update := bson.M{
		"$push": bson.M{"messages": messageID},
	}
	if isReceiver {
		update["$inc"] = bson.M{"unread_count": 1}
		update["$set"] = bson.M{"updated_at": now}
	} else {
		onInsert["unread_count"] = 0
		update["$set"] = bson.M{"updated_at": now, "last_read_message_id": messageID}
	}
	update["$setOnInsert"] = onInsert
	return update
}

// appendRef upserts the reference. E11000 means either the mailbox already
// lists messageID or a concurrent upsert created the mailbox first; in the
// second case the push is replayed against the existing document.
func appendRef(ctx context.Context, col mailboxWriter, owner, partner, messageID string, isReceiver bool, now time.Time) error {
	filter := pairFilter(owner, partner)
	filter["messages"] = bson.M{"$ne": messageID}
	update := appendUpdate(messageID, isReceiver, now)

	_, err := col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if !mongo.IsDuplicateKeyError(err) {
		return storeErr("append message", err)
	}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("append message", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	listed := pairFilter(owner, partner)
	listed["messages"] = messageID
	n, err := col.CountDocuments(ctx, listed)
	if err != nil {
		return storeErr("append message", err)
	}
	if n == 0 {
		return fmt.Errorf("append %s to mailbox %s/%s: %w", messageID, owner, partner, domain.ErrStore)
	}
	return nil
}

func (r *MongoMailboxRepo) Get(ctx context.Context, owner, partner string) (*domain.Mailbox, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var mb domain.Mailbox
	if err := r.col.FindOne(ctx, pairFilter(owner, partner)).Decode(&mb); err != nil {
		return nil, storeErr(fmt.Sprintf("mailbox %s/%s", owner, partner), err)
	}
	return &mb, nil
}

func (r *MongoMailboxRepo) MarkRead(ctx context.Context, owner, partner, lastReadID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.col.UpdateOne(ctx, pairFilter(owner, partner), bson.M{
		"$set": bson.M{"unread_count": 0, "last_read_message_id": lastReadID},
	})
	if err != nil {
		return storeErr("mark read", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	return nil
}

func (r *MongoMailboxRepo) Truncate(ctx context.Context, owner, partner, messageID string) ([]string, error) {
	mb, err := r.Get(ctx, owner, partner)
	if err != nil {
		return nil, err
	}
	idx := mb.IndexOf(messageID)
	if idx < 0 {
		return nil, fmt.Errorf("message %s in mailbox %s/%s: %w", messageID, owner, partner, domain.ErrNotFound)
	}
	removed := append([]string(nil), mb.Messages[:idx+1]...)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// $pullAll leaves concurrent appends alone, unlike rewriting the array
	_, err = r.col.UpdateOne(ctx, pairFilter(owner, partner), bson.M{
		"$pullAll": bson.M{"messages": removed},
		"$set":     bson.M{"unread_count": 0, "updated_at": r.now().UTC()},
	})
	if err != nil {
		return nil, storeErr("truncate mailbox", err)
	}
	empty := pairFilter(owner, partner)
	empty["messages"] = bson.M{"$size": 0}
	if _, err := r.col.UpdateOne(ctx, empty, bson.M{"$unset": bson.M{"last_read_message_id": ""}}); err != nil {
		return nil, storeErr("clear read cursor", err)
	}
	return removed, nil
}

func (r *MongoMailboxRepo) Contains(ctx context.Context, owner, partner string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: pairFilter(owner, partner)}},
		{{Key: "$project", Value: bson.M{
			"_id":  0,
			"kept": bson.M{"$setIntersection": bson.A{"$messages", ids}},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("partner scan", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, storeErr("partner scan", err)
		}
		return nil, fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	var row struct {
		Kept []string `bson:"kept"`
	}
	if err := cur.Decode(&row); err != nil {
		return nil, storeErr("decode partner scan", err)
	}
	for _, id := range row.Kept {
		out[id] = true
	}
	return out, nil
}

func (r *MongoMailboxRepo) DeletePair(ctx context.Context, a, b string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.col.DeleteMany(ctx, bson.M{"$or": []bson.M{pairFilter(a, b), pairFilter(b, a)}})
	return storeErr("delete mailbox pair", err)
}

func (r *MongoMailboxRepo) TotalUnread(ctx context.Context, owner string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner": owner}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$unread_count"}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, storeErr("total unread", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, storeErr("total unread", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (r *MongoMailboxRepo) ListForOwner(ctx context.Context, owner string) ([]domain.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "unread_count", Value: -1}, {Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"partner": 1, "unread_count": 1, "updated_at": 1})
	cur, err := r.col.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, storeErr("list mailboxes", err)
	}
	defer cur.Close(ctx)

	out := []domain.Summary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("list mailboxes", err)
	}
	return out, nil
}
