package vector

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collection metadata lives in the class property descriptions since
// weaviate classes have no free-form metadata of their own.
const (
	collectionNameProperty = "collection_name"
	collectionSizeProperty = "collection_size"
)

// Weaviate stores embeddings as objects of one class per collection.
type Weaviate struct {
	client *weaviate.Client
}

// NewWeaviate connects to the weaviate server at rawurl.
func NewWeaviate(rawurl string) (*Weaviate, error) {
	log.Info("Connecting to weaviate at %s", rawurl)

	if !strings.Contains(rawurl, "://") {
		rawurl = "http://" + rawurl
	}
	scheme, host, ok := strings.Cut(rawurl, "://")
	if !ok || host == "" {
		return nil, errs.New(errs.Weaviate, "invalid weaviate url %q", rawurl)
	}

	client := weaviate.New(weaviate.Config{Scheme: scheme, Host: host})
	return &Weaviate{client: client}, nil
}

// ID returns the provider id.
func (s *Weaviate) ID() string { return "weaviate" }

// ListCollections returns every class this service created. Classes
// without our metadata properties are skipped.
func (s *Weaviate) ListCollections(ctx context.Context) ([]Collection, error) {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, s.wrap(err)
	}

	collections := make([]Collection, 0, len(schema.Classes))
	for _, class := range schema.Classes {
		collection, err := collectionFromClass(class)
		if err != nil {
			continue
		}
		collections = append(collections, collection)
	}
	return collections, nil
}

// CreateCollection creates a class for the collection. Class names must
// start with a capital letter.
func (s *Weaviate) CreateCollection(ctx context.Context, name string, size int) error {
	class := className(name)
	log.Debug("Creating weaviate class %s (size %d)", class, size)

	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return s.wrap(err)
	}
	if exists {
		return errs.New(errs.AlreadyExists, "collection %q already exists", class)
	}

	err = s.client.Schema().ClassCreator().WithClass(&models.Class{
		Class:      class,
		Vectorizer: "none",
		Properties: collectionProperties(class, size),
	}).Do(ctx)
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// GetCollection returns the collection and its vector size.
func (s *Weaviate) GetCollection(ctx context.Context, name string) (Collection, error) {
	class, err := s.client.Schema().ClassGetter().WithClassName(className(name)).Do(ctx)
	if err != nil {
		return Collection{}, s.wrap(err)
	}
	return collectionFromClass(class)
}

// DeleteCollection removes the class and all its objects.
func (s *Weaviate) DeleteCollection(ctx context.Context, name string) error {
	class := className(name)
	log.Debug("Deleting weaviate class %s", class)
	if err := s.client.Schema().ClassDeleter().WithClassName(class).Do(ctx); err != nil {
		return s.wrap(err)
	}
	return nil
}

// CreateDefaultCollection sets up the default collection. Safe to call
// on every startup.
func (s *Weaviate) CreateDefaultCollection(ctx context.Context, size int) error {
	err := s.CreateCollection(ctx, model.DefaultCollectionName, size)
	if err != nil && !errs.Is(err, errs.AlreadyExists) {
		return err
	}
	return nil
}

// Query returns the content of the limit closest objects.
func (s *Weaviate) Query(ctx context.Context, vector []float64, collection string, limit int) ([]string, error) {
	class := className(collection)

	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(toFloat32(vector))
	resp, err := s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(graphql.Field{Name: contentProperty}).
		WithNearVector(near).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, s.wrap(err)
	}
	if len(resp.Errors) > 0 {
		return nil, errs.New(errs.Weaviate, "%s", resp.Errors[0].Message)
	}

	var data struct {
		Get map[string][]struct {
			Content string `json:"content"`
		} `json:"Get"`
	}
	if err := decodeGraphQL(resp.Data, &data); err != nil {
		return nil, err
	}

	objects, ok := data.Get[class]
	if !ok {
		return nil, errs.New(errs.Weaviate, "class %q missing from query response", class)
	}
	results := make([]string, 0, len(objects))
	for _, object := range objects {
		results = append(results, object.Content)
	}
	return results, nil
}

// InsertEmbeddings batches one object per chunk, tagged with the source
// document id.
func (s *Weaviate) InsertEmbeddings(ctx context.Context, documentID uuid.UUID, collection string, content []string, vectors [][]float64) error {
	if len(content) != len(vectors) {
		return errs.New(errs.Embedding, "got %d embeddings for %d chunks", len(vectors), len(content))
	}

	class := className(collection)
	log.Debug("Inserting %d vectors into weaviate class %s", len(vectors), class)

	objects := make([]*models.Object, len(content))
	for i, chunk := range content {
		objects[i] = &models.Object{
			Class: class,
			ID:    strfmt.UUID(uuid.NewString()),
			Properties: map[string]interface{}{
				contentProperty:    chunk,
				documentIDProperty: documentID.String(),
			},
			Vector: toFloat32(vectors[i]),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return s.wrap(err)
	}
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			return errs.New(errs.Weaviate, "batch insert failed: %s", e.Message)
		}
	}
	return nil
}

// DeleteEmbeddings removes every object belonging to the document.
func (s *Weaviate) DeleteEmbeddings(ctx context.Context, collection string, documentID uuid.UUID) error {
	class := className(collection)
	log.Debug("Deleting vectors of document %s from weaviate class %s", documentID, class)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(class).
		WithWhere(s.documentFilter(documentID)).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// CountVectors returns the number of objects stored for the document.
func (s *Weaviate) CountVectors(ctx context.Context, collection string, documentID uuid.UUID) (int, error) {
	class := className(collection)

	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(class).
		WithWhere(s.documentFilter(documentID)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, s.wrap(err)
	}
	if len(resp.Errors) > 0 {
		return 0, errs.New(errs.Weaviate, "%s", resp.Errors[0].Message)
	}

	var data struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count float64 `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := decodeGraphQL(resp.Data, &data); err != nil {
		return 0, err
	}

	groups, ok := data.Aggregate[class]
	if !ok || len(groups) == 0 {
		return 0, errs.New(errs.Weaviate, "class %q missing from aggregate response", class)
	}
	return int(groups[0].Meta.Count), nil
}

func (s *Weaviate) documentFilter(documentID uuid.UUID) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{documentIDProperty}).
		WithOperator(filters.Equal).
		WithValueText(documentID.String())
}

func (s *Weaviate) wrap(err error) error {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		if clientErr.StatusCode == http.StatusNotFound {
			return errs.Wrap(errs.DoesNotExist, err)
		}
		if strings.Contains(clientErr.Msg, "already exists") {
			return errs.Wrap(errs.AlreadyExists, err)
		}
	}
	return errs.Wrap(errs.Weaviate, err)
}

// collectionProperties encodes the collection metadata into property
// descriptions, alongside the payload properties objects will carry.
func collectionProperties(name string, size int) []*models.Property {
	return []*models.Property{
		{Name: contentProperty, DataType: []string{"text"}},
		{Name: documentIDProperty, DataType: []string{"text"}},
		{Name: collectionNameProperty, DataType: []string{"text"}, Description: name},
		{Name: collectionSizeProperty, DataType: []string{"int"}, Description: strconv.Itoa(size)},
	}
}

func collectionFromClass(class *models.Class) (Collection, error) {
	collection := Collection{Name: class.Class}
	for _, prop := range class.Properties {
		switch prop.Name {
		case collectionNameProperty:
			if prop.Description != "" {
				collection.Name = prop.Description
			}
		case collectionSizeProperty:
			size, err := strconv.Atoi(prop.Description)
			if err != nil {
				return Collection{}, errs.New(errs.Weaviate, "invalid size metadata in class %q: %s", class.Class, prop.Description)
			}
			collection.Size = size
		}
	}
	if collection.Size == 0 {
		return Collection{}, errs.New(errs.Weaviate, "class %q carries no size metadata", class.Class)
	}
	return collection, nil
}

// className capitalizes the first letter, required of weaviate classes.
func className(name string) string {
	runes := []rune(name)
	if len(runes) == 0 {
		return name
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NormalizeName returns the collection name as the provider will store
// it, so repo rows and store collections agree. Weaviate capitalizes
// class names; everyone else takes them verbatim.
func NormalizeName(provider, name string) string {
	if provider == "weaviate" {
		return className(name)
	}
	return name
}

func decodeGraphQL(data map[string]models.JSONObject, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errs.Wrap(errs.Json, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.Json, err)
	}
	return nil
}
