package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/models"
)

// MongoConfig configures a MongoStore.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore reads theses from a MongoDB collection with the fields
// _id, title, authorName, abstract and full_text.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// thesisDoc is the stored shape of a thesis. _id is usually an ObjectID; other
// id types are listed as-is and left out of the index by the builder, since
// ValidateID rejects them.
type thesisDoc struct {
	ID         bson.RawValue `bson:"_id"`
	Title      string        `bson:"title"`
	AuthorName string        `bson:"authorName"`
	Abstract   string        `bson:"abstract"`
	FullText   string        `bson:"full_text,omitempty"`
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the store.
func WithLogger(l *zap.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMongoStore creates a client for cfg.URI. The connection is established lazily,
// so an unreachable server surfaces as ErrStoreUnavailable on first use rather
// than here.
func NewMongoStore(ctx context.Context, cfg MongoConfig, opts ...Option) (*MongoStore, error) {
	o := applyOptions(opts)
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout).
		SetConnectTimeout(cfg.Timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s := &MongoStore{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: cfg.Timeout,
		logger:  o.logger,
	}
	return s, nil
}

// Ping checks that the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable(err)
	}
	return nil
}

// CountDocuments returns the number of theses in the collection.
func (s *MongoStore) CountDocuments(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// ListDocuments returns all theses in natural collection order. Only server
// selection is bounded by the store timeout; the scan itself follows ctx.
func (s *MongoStore) ListDocuments(ctx context.Context, includeFullText bool) ([]*models.ThesisDocument, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetProjection(projection(includeFullText)))
	if err != nil {
		return nil, unavailable(err)
	}
	defer cursor.Close(ctx)

	var docs []*models.ThesisDocument
	for cursor.Next(ctx) {
		var d thesisDoc
		if err := cursor.Decode(&d); err != nil {
			s.logger.Warn("skipping undecodable thesis", zap.Error(err))
			continue
		}
		docs = append(docs, d.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, unavailable(err)
	}
	return docs, nil
}

// GetDocument returns the thesis with the given ObjectID hex string.
func (s *MongoStore) GetDocument(ctx context.Context, id string, includeFullText bool) (*models.ThesisDocument, error) {
	if err := s.ValidateID(id); err != nil {
		return nil, err
	}
	oid, _ := primitive.ObjectIDFromHex(id)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}},
		options.FindOne().SetProjection(projection(includeFullText)))
	return decodeOne(res, id)
}

// decodeOne separates query failures, which mean the store is unavailable, from
// a stored document that does not decode, which is a data error.
func decodeOne(res *mongo.SingleResult, id string) (*models.ThesisDocument, error) {
	raw, err := res.Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var d thesisDoc
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode thesis %s: %w", id, err)
	}
	return d.toModel(), nil
}

// ValidateID accepts 24-character hex ObjectIDs.
func (s *MongoStore) ValidateID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return fmt.Errorf("%w: %q is not a 24-character hex ObjectID", ErrInvalidID, id)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func projection(includeFullText bool) bson.D {
	p := bson.D{
		{Key: "_id", Value: 1},
		{Key: "title", Value: 1},
		{Key: "authorName", Value: 1},
		{Key: "abstract", Value: 1},
	}
	if includeFullText {
		p = append(p, bson.E{Key: "full_text", Value: 1})
	}
	return p
}

func (d *thesisDoc) toModel() *models.ThesisDocument {
	return &models.ThesisDocument{
		ID:       idString(d.ID),
		Title:    d.Title,
		Author:   d.AuthorName,
		Abstract: d.Abstract,
		FullText: d.FullText,
	}
}

func idString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	case bsontype.String:
		return v.StringValue()
	default:
		return v.String()
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
