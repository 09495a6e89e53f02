// Package mongostore is the MongoDB note store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kuitang/notes-api/internal/notes"
)

const (
	// CollectionName holds note documents.
	CollectionName = "notes"

	// DefaultDatabase is used when the connection URI does not name one.
	DefaultDatabase = "notes"
)

// Options configures Open.
type Options struct {
	URI      string
	Database string
}

// Store implements notes.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ notes.Store = (*Store)(nil)

type noteDoc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Title   string             `bson:"title"`
	Content string             `bson:"content"`
	Created time.Time          `bson:"created"`
	Tags    []string           `bson:"tags,omitempty"`
}

func (d noteDoc) toNote() *notes.Note {
	return &notes.Note{
		ID:      d.ID.Hex(),
		Title:   d.Title,
		Content: d.Content,
		Created: d.Created.UTC(),
		Tags:    d.Tags,
	}
}

// Open connects, pings and ensures the created index. The client is shared
// by every request until Close.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb URI is required")
	}
	dbName := opts.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, coll: client.Database(dbName).Collection(CollectionName)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("created_1__id_1"),
	})
	if err != nil {
		return fmt.Errorf("failed to create notes index: %w", err)
	}
	return nil
}

// ValidID reports whether id is a 24-character hex ObjectID.
func (s *Store) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// List matches titles with an escaped, case-insensitive regex so the search
// term is always a literal substring.
func (s *Store) List(ctx context.Context, filter notes.ListFilter) ([]notes.Note, error) {
	query := bson.D{}
	if filter.TitleContains != "" {
		query = bson.D{{Key: "title", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(filter.TitleContains),
			Options: "i",
		}}}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	var docs []noteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}

	out := make([]notes.Note, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toNote())
	}
	return out, nil
}

// Get retrieves a note by ID
func (s *Store) Get(ctx context.Context, id string) (*notes.Note, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false, nil
	}
	var doc noteDoc
	err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read note: %w", err)
	}
	return doc.toNote(), true, nil
}

// Insert stores a new note; the ObjectID is generated client-side.
func (s *Store) Insert(ctx context.Context, in notes.NewNote) (*notes.Note, error) {
	doc := noteDoc{
		ID:      primitive.NewObjectID(),
		Title:   in.Title,
		Content: in.Content,
		// BSON dates carry millisecond precision.
		Created: in.Created.UTC().Truncate(time.Millisecond),
		Tags:    in.Tags,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return doc.toNote(), nil
}

// Update sets title (and content when present) and returns the document
// as it is after the update.
func (s *Store) Update(ctx context.Context, id string, patch notes.NotePatch) (*notes.Note, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false, nil
	}
	set := bson.D{{Key: "title", Value: patch.Title}}
	if patch.Content != nil {
		set = append(set, bson.E{Key: "content", Value: *patch.Content})
	}

	var doc noteDoc
	err = s.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update note: %w", err)
	}
	return doc.toNote(), true, nil
}

// Delete removes a note and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes the notes collection. Tests use it to reset state.
func (s *Store) Drop(ctx context.Context) error {
	return s.coll.Drop(ctx)
}
