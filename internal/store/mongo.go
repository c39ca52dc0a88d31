package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
)

// MongoStore keeps media records in a MongoDB collection. One document per
// record; all completion-event updates are single-document $set operations.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

type mediaDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID          string             `bson:"ownerId"`
	FileName         string             `bson:"fileName"`
	OriginalFileName string             `bson:"originalFileName"`
	MimeType         string             `bson:"mimeType"`
	FileSize         int64              `bson:"fileSize"`
	FileURL          string             `bson:"fileUrl"`
	ThumbnailURL     string             `bson:"thumbnailUrl,omitempty"`
	OptimizedURL     string             `bson:"optimizedUrl,omitempty"`
	IsOptimized      bool               `bson:"isOptimized"`
	Category         string             `bson:"category"`
	Location         string             `bson:"location,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoStore{
		client: client,
		col:    client.Database(database).Collection("media"),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, rec *media.Record) (string, error) {
	now := time.Now().UTC()
	doc := mediaDoc{
		OwnerID:          rec.OwnerID,
		FileName:         rec.FileName,
		OriginalFileName: rec.OriginalFileName,
		MimeType:         rec.MimeType,
		FileSize:         rec.FileSize,
		FileURL:          rec.FileURL,
		ThumbnailURL:     rec.ThumbnailURL,
		OptimizedURL:     rec.OptimizedURL,
		IsOptimized:      rec.IsOptimized,
		Category:         string(rec.Category),
		Location:         string(rec.Location),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	res, err := s.col.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}

	id := res.InsertedID.(primitive.ObjectID).Hex()
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

func (s *MongoStore) FindOne(ctx context.Context, ownerID, id string) (*media.Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed record id %q", media.ErrInvalidInput, id)
	}

	var doc mediaDoc
	err = s.col.FindOne(ctx, bson.M{"_id": oid, "ownerId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, media.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return docToRecord(&doc), nil
}

func (s *MongoStore) UpdateFields(ctx context.Context, id string, fields Fields) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: malformed record id %q", media.ErrInvalidInput, id)
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}

	res, err := s.col.UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return media.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: malformed record id %q", media.ErrInvalidInput, id)
	}

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return media.ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, ownerID string, limit, offset int) ([]*media.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := s.col.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*media.Record
	for cur.Next(ctx) {
		var doc mediaDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, docToRecord(&doc))
	}
	return records, cur.Err()
}

func docToRecord(doc *mediaDoc) *media.Record {
	rec := &media.Record{
		ID:               doc.ID.Hex(),
		OwnerID:          doc.OwnerID,
		FileName:         doc.FileName,
		OriginalFileName: doc.OriginalFileName,
		MimeType:         doc.MimeType,
		FileSize:         doc.FileSize,
		FileURL:          doc.FileURL,
		ThumbnailURL:     doc.ThumbnailURL,
		OptimizedURL:     doc.OptimizedURL,
		IsOptimized:      doc.IsOptimized,
		Category:         media.Category(doc.Category),
		Location:         media.ArtifactLocation(doc.Location),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	// Documents written before the location field existed carry only URLs.
	if rec.Location == "" {
		if strings.Contains(rec.FileURL, "/optimized/") {
			rec.Location = media.LocationOptimizedCanonical
		} else if rec.OptimizedURL != "" {
			rec.Location = media.LocationOptimizedSeparate
		} else {
			rec.Location = media.LocationOriginal
		}
	}
	return rec
}
