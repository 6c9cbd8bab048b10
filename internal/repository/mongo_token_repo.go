package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultDevice = "unknown"

type MongoTokenRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoTokenRepo(db *mongo.Database) *MongoTokenRepo {
	r := &MongoTokenRepo{col: db.Collection("device_tokens"), now: time.Now}
	_, _ = r.col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("owner_token_uq"),
	})
	return r
}

func (r *MongoTokenRepo) Upsert(ctx context.Context, owner, token, device string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	set := bson.M{"updated_at": r.now().UTC()}
	onInsert := bson.M{}
	if device != "" {
		set["device"] = device
	} else {
		onInsert["device"] = defaultDevice
	}
	update := bson.M{"$set": set}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"owner_id": owner, "token": token}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, storeErr("upsert token", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *MongoTokenRepo) Delete(ctx context.Context, owner, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.col.DeleteOne(ctx, bson.M{"owner_id": owner, "token": token})
	return storeErr("delete token", err)
}

func (r *MongoTokenRepo) ListTokens(ctx context.Context, owner string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"owner_id": owner}, opts)
	if err != nil {
		return nil, storeErr("list tokens", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Token string `bson:"token"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, storeErr("list tokens", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Token)
	}
	return out, nil
}

func (r *MongoTokenRepo) Prune(ctx context.Context, owner string, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.col.DeleteMany(ctx, bson.M{"owner_id": owner, "token": bson.M{"$in": tokens}})
	if err != nil {
		return 0, storeErr("prune tokens", err)
	}
	return res.DeletedCount, nil
}
