package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMongoStore_ValidateID(t *testing.T) {
	s := &MongoStore{}
	if err := s.ValidateID("65a1f0c2e4b0a1b2c3d4e5f6"); err != nil {
		t.Errorf("valid ObjectID rejected: %v", err)
	}
	for _, id := range []string{"", "t1", "65a1f0c2e4b0a1b2c3d4e5fZ", "65a1f0c2e4b0a1b2c3d4e5f6aa"} {
		if err := s.ValidateID(id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestIDString(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		t.Fatal(err)
	}
	if got := idString(bson.Raw(raw).Lookup("_id")); got != oid.Hex() {
		t.Errorf("idString(ObjectID) = %s, want %s", got, oid.Hex())
	}

	raw, _ = bson.Marshal(bson.D{{Key: "_id", Value: "legacy-7"}})
	if got := idString(bson.Raw(raw).Lookup("_id")); got != "legacy-7" {
		t.Errorf("idString(string) = %s", got)
	}
}

func TestDecodeOne(t *testing.T) {
	oid := primitive.NewObjectID()
	id := oid.Hex()

	good := mongo.NewSingleResultFromDocument(bson.D{
		{Key: "_id", Value: oid}, {Key: "title", Value: "ML"}, {Key: "authorName", Value: "Ben"},
		{Key: "abstract", Value: "machine learning basics"},
	}, nil, nil)
	doc, err := decodeOne(good, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != id || doc.Title != "ML" || doc.Author != "Ben" {
		t.Errorf("decoded %+v", doc)
	}

	tests := []struct {
		name            string
		res             *mongo.SingleResult
		wantNotFound    bool
		wantUnavailable bool
	}{
		{"no documents", mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil), true, false},
		{"server error", mongo.NewSingleResultFromDocument(bson.D{}, errors.New("connection reset"), nil), false, true},
		{"malformed document", mongo.NewSingleResultFromDocument(bson.D{
			{Key: "_id", Value: oid}, {Key: "title", Value: bson.D{{Key: "nested", Value: 1}}},
		}, nil, nil), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeOne(tt.res, id)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(ErrNotFound) = %v for %v", got, err)
			}
			if got := errors.Is(err, ErrStoreUnavailable); got != tt.wantUnavailable {
				t.Errorf("errors.Is(ErrStoreUnavailable) = %v for %v", got, err)
			}
		})
	}
}

func TestMongoStore_Unreachable(t *testing.T) {
	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoConfig{
		URI:        "mongodb://127.0.0.1:1/",
		Database:   "digi-thesis_DB",
		Collection: "theses",
		Timeout:    300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewMongoStore should not dial eagerly: %v", err)
	}
	defer s.Close()

	if _, err := s.CountDocuments(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("CountDocuments: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.ListDocuments(ctx, false); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("ListDocuments: expected ErrStoreUnavailable, got %v", err)
	}
	if err := Ping(ctx, s); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.GetDocument(ctx, "not-hex", false); !errors.Is(err, ErrInvalidID) {
		t.Errorf("GetDocument: invalid id should fail before dialing, got %v", err)
	}
}

// TestMongoStore_Live runs against a real server when THESISLENS_TEST_MONGO_URI is set.
func TestMongoStore_Live(t *testing.T) {
	uri := os.Getenv("THESISLENS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("THESISLENS_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	coll := "theses_test_" + primitive.NewObjectID().Hex()
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: "thesislens_test", Collection: coll, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	defer func() { _ = s.coll.Drop(ctx) }()

	oid := primitive.NewObjectID()
	_, err = s.coll.InsertMany(ctx, []interface{}{
		bson.D{{Key: "_id", Value: oid}, {Key: "title", Value: "ML"}, {Key: "authorName", Value: "Ben"},
			{Key: "abstract", Value: "machine learning basics"}, {Key: "full_text", Value: "full"}},
		bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "abstract", Value: "gardening tips"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.CountDocuments(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountDocuments = %d, %v", n, err)
	}
	docs, err := s.ListDocuments(ctx, false)
	if err != nil || len(docs) != 2 {
		t.Fatalf("ListDocuments = %d, %v", len(docs), err)
	}
	if docs[0].FullText != "" {
		t.Error("full text should not be projected")
	}
	got, err := s.GetDocument(ctx, oid.Hex(), true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Author != "Ben" || got.FullText != "full" {
		t.Errorf("got %+v", got)
	}
	if _, err := s.GetDocument(ctx, primitive.NewObjectID().Hex(), false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
