package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type updateCall struct {
	filter bson.M
	upsert bool
}

// scriptedCollection answers UpdateOne calls from a fixed script.
type scriptedCollection struct {
	results []*mongo.UpdateResult
	errs    []error
	calls   []updateCall
	listed  int64
	counted bool
}

func (c *scriptedCollection) UpdateOne(_ context.Context, filter interface{}, _ interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	i := len(c.calls)
	call := updateCall{filter: filter.(bson.M)}
	for _, o := range opts {
		if o.Upsert != nil && *o.Upsert {
			call.upsert = true
		}
	}
	c.calls = append(c.calls, call)
	return c.results[i], c.errs[i]
}

func (c *scriptedCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	c.counted = true
	return c.listed, nil
}

var duplicateKey = mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}

func TestAppendRefUpsertsOnce(t *testing.T) {
	col := &scriptedCollection{
		results: []*mongo.UpdateResult{{UpsertedCount: 1}},
		errs:    []error{nil},
	}
	require.NoError(t, appendRef(context.Background(), col, "alice", "bob", "m1", true, time.Now()))
	require.Len(t, col.calls, 1)
	assert.True(t, col.calls[0].upsert)
	assert.Equal(t, bson.M{"$ne": "m1"}, col.calls[0].filter["messages"])
}

func TestAppendRefReplaysAfterLosingCreateRace(t *testing.T) {
	col := &scriptedCollection{
		results: []*mongo.UpdateResult{nil, {MatchedCount: 1, ModifiedCount: 1}},
		errs:    []error{duplicateKey, nil},
	}
	require.NoError(t, appendRef(context.Background(), col, "alice", "bob", "m2", true, time.Now()))
	require.Len(t, col.calls, 2)
	assert.False(t, col.calls[1].upsert)
	assert.False(t, col.counted)
}

func TestAppendRefAlreadyListedIsIdempotent(t *testing.T) {
	col := &scriptedCollection{
		results: []*mongo.UpdateResult{nil, {}},
		errs:    []error{duplicateKey, nil},
		listed:  1,
	}
	require.NoError(t, appendRef(context.Background(), col, "alice", "bob", "m1", false, time.Now()))
	assert.True(t, col.counted)
}

func TestAppendRefReportsLostReference(t *testing.T) {
	col := &scriptedCollection{
		results: []*mongo.UpdateResult{nil, {}},
		errs:    []error{duplicateKey, nil},
	}
	err := appendRef(context.Background(), col, "alice", "bob", "m3", true, time.Now())
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestAppendRefPassesOtherErrorsThrough(t *testing.T) {
	col := &scriptedCollection{
		results: []*mongo.UpdateResult{nil},
		errs:    []error{errors.New("connection reset")},
	}
	err := appendRef(context.Background(), col, "alice", "bob", "m1", true, time.Now())
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Len(t, col.calls, 1)
}

func TestAppendUpdateShape(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	recv := appendUpdate("m1", true, now)
	assert.Equal(t, bson.M{"unread_count": 1}, recv["$inc"])
	assert.NotContains(t, recv["$set"], "last_read_message_id")

	sent := appendUpdate("m1", false, now)
	assert.Nil(t, sent["$inc"])
	assert.Equal(t, "m1", sent["$set"].(bson.M)["last_read_message_id"])
	assert.Equal(t, 0, sent["$setOnInsert"].(bson.M)["unread_count"])
}
