package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// MongoDB implements Storage using MongoDB multi-document transactions.
// Transactions require a replica set or sharded cluster.
type MongoDB struct {
	client     *mongo.Client
	db         *mongo.Database
	phrases    *mongo.Collection
	embeddings *mongo.Collection
}

// phraseDoc is the MongoDB phrase document
type phraseDoc struct {
	ID     int64  `bson:"_id"`
	Text   string `bson:"text"`
	Lang   string `bson:"lang,omitempty"`
	Active bool   `bson:"active"`
}

// embeddingKey is the compound _id enforcing one embedding per phrase and model
type embeddingKey struct {
	PhraseID int64  `bson:"phrase_id"`
	Model    string `bson:"model"`
}

// NewMongoDB creates a new MongoDB storage
func NewMongoDB(ctx context.Context, uri, database string) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to connect to mongodb: %w", err))
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	return &MongoDB{
		client:     client,
		db:         db,
		phrases:    db.Collection("phrases"),
		embeddings: db.Collection("phrase_embeddings"),
	}, nil
}

func (m *MongoDB) Migrate(ctx context.Context) error {
	if _, err := m.phrases.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "active", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return err
	}

	_, err := m.embeddings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "phrase_id", Value: 1}, {Key: "model", Value: 1}}},
		{Keys: bson.D{{Key: "model", Value: 1}}},
	})
	return err
}

func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) Begin(ctx context.Context) (Tx, error) {
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &mongoTx{m: m, sess: sess}, nil
}

func (m *MongoDB) Status(ctx context.Context, model string) (*types.Status, error) {
	active, err := m.phrases.CountDocuments(ctx, bson.D{{Key: "active", Value: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to count phrases: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "model", Value: model}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: m.phrases.Name()},
			{Key: "localField", Value: "phrase_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "phrase"},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "phrase.active", Value: true}}}},
		{{Key: "$count", Value: "n"}},
	}
	cursor, err := m.embeddings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	var counts []struct {
		N int64 `bson:"n"`
	}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	st := &types.Status{Model: model, ActivePhrases: active}
	if len(counts) > 0 {
		st.Embedded = counts[0].N
	}
	st.Pending = st.ActivePhrases - st.Embedded
	return st, nil
}

type mongoTx struct {
	m    *MongoDB
	sess mongo.Session
	done bool
}

func (t *mongoTx) FetchBatch(ctx context.Context, model string, limit int) ([]types.Phrase, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid batch limit %d", limit)
	}
	sc := mongo.NewSessionContext(ctx, t.sess)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "active", Value: true}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: t.m.embeddings.Name()},
			{Key: "let", Value: bson.D{{Key: "pid", Value: "$_id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$phrase_id", "$$pid"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$model", model}}},
				}}}}}}},
				bson.D{{Key: "$limit", Value: 1}},
			}},
			{Key: "as", Value: "embedded"},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "embedded", Value: bson.D{{Key: "$size", Value: 0}}}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$project", Value: bson.D{{Key: "text", Value: 1}, {Key: "lang", Value: 1}, {Key: "active", Value: 1}}}},
	}

	cursor, err := t.m.phrases.Aggregate(sc, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch phrases: %w", err)
	}

	var docs []phraseDoc
	if err := cursor.All(sc, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode phrases: %w", err)
	}

	phrases := make([]types.Phrase, 0, len(docs))
	for _, d := range docs {
		phrases = append(phrases, types.Phrase{ID: d.ID, Text: d.Text, Lang: d.Lang, Active: d.Active})
	}
	return phrases, nil
}

// Store upserts with $setOnInsert: a duplicate-key insert would abort the
// whole transaction, while this leaves an existing embedding untouched.
func (t *mongoTx) Store(ctx context.Context, phraseID int64, model string, vector []float32) error {
	sc := mongo.NewSessionContext(ctx, t.sess)

	key := embeddingKey{PhraseID: phraseID, Model: model}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "phrase_id", Value: phraseID},
		{Key: "model", Value: model},
		{Key: "embedding", Value: vector},
		{Key: "dims", Value: len(vector)},
		{Key: "created_at", Value: time.Now().UTC()},
	}}}

	_, err := t.m.embeddings.UpdateOne(sc, bson.D{{Key: "_id", Value: key}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store embedding for phrase %d: %w", phraseID, err)
	}
	return nil
}

func (t *mongoTx) Commit(ctx context.Context) error {
	defer t.end(ctx)
	return t.sess.CommitTransaction(ctx)
}

func (t *mongoTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	defer t.end(ctx)
	return t.sess.AbortTransaction(ctx)
}

func (t *mongoTx) end(ctx context.Context) {
	t.done = true
	t.sess.EndSession(ctx)
}
