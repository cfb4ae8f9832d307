package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yaoapp/duan/errs"
)

// Mongo stores blobs as records in a MongoDB collection, one per path.
// For this store the path of a blob is simply its name.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoFile struct {
	Path    string `bson:"path"`
	Name    string `bson:"name"`
	Content []byte `bson:"content"`
}

// NewMongo connects to uri and ensures the unique path index.
func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}

	coll := client.Database("duan").Collection("documents")
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "path", Value: -1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}

	return &Mongo{client: client, coll: coll}, nil
}

// ID implements Store.
func (s *Mongo) ID() string {
	return "mongo"
}

// Read returns the blob stored at path.
func (s *Mongo) Read(ctx context.Context, path string) ([]byte, error) {
	var file mongoFile
	err := s.coll.FindOne(ctx, bson.D{{Key: "path", Value: path}}).Decode(&file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.New(errs.DoesNotExist, "file %q does not exist", path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return file.Content, nil
}

// Write stores the blob under name. An existing record is refused.
func (s *Mongo) Write(ctx context.Context, name string, content []byte) (string, error) {
	_, err := s.coll.InsertOne(ctx, mongoFile{Path: name, Name: name, Content: content})
	if mongo.IsDuplicateKeyError(err) {
		return "", errs.New(errs.AlreadyExists, "file %q already exists", name)
	}
	if err != nil {
		return "", errs.Wrap(errs.IO, err)
	}
	return name, nil
}

// Delete removes the blob at path.
func (s *Mongo) Delete(ctx context.Context, path string) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "path", Value: path}})
	if err != nil {
		return errs.Wrap(errs.IO, err)
	}
	if res.DeletedCount == 0 {
		return errs.New(errs.DoesNotExist, "file %q does not exist", path)
	}
	return nil
}

// List returns every stored blob without its content.
func (s *Mongo) List(ctx context.Context) ([]File, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "content", Value: 0}})
	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	defer cursor.Close(ctx)

	files := []File{}
	for cursor.Next(ctx) {
		var file mongoFile
		if err := cursor.Decode(&file); err != nil {
			return nil, errs.Wrap(errs.IO, err)
		}
		files = append(files, File{Name: file.Name, Path: file.Path})
	}
	if err := cursor.Err(); err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return files, nil
}

// Close disconnects the client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
