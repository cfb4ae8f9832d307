package vector

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/yaoapp/kun/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

// Qdrant stores embeddings in a Qdrant server over gRPC.
type Qdrant struct {
	client *qdrant.Client
}

// NewQdrant connects to the Qdrant server at rawurl. The url may carry
// a scheme and port; the port defaults to 6334 (gRPC).
func NewQdrant(rawurl string, apiKey string) (*Qdrant, error) {
	log.Info("Initializing qdrant at %s", rawurl)

	host, port, err := splitHostPort(rawurl, 6334)
	if err != nil {
		return nil, errs.Wrap(errs.Qdrant, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                10 * time.Second,
				Timeout:             3 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.Qdrant, err)
	}
	return &Qdrant{client: client}, nil
}

// ID returns the provider id.
func (s *Qdrant) ID() string { return "qdrant" }

// Close releases the gRPC connection.
func (s *Qdrant) Close() error { return s.client.Close() }

// ListCollections returns every collection with its vector size.
func (s *Qdrant) ListCollections(ctx context.Context) ([]Collection, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, s.wrap(err)
	}
	collections := make([]Collection, 0, len(names))
	for _, name := range names {
		collection, err := s.GetCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		collections = append(collections, collection)
	}
	return collections, nil
}

// CreateCollection creates a collection of cosine-distance vectors.
func (s *Qdrant) CreateCollection(ctx context.Context, name string, size int) error {
	log.Debug("Creating qdrant collection %s (size %d)", name, size)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return s.wrap(err)
	}
	if exists {
		return errs.New(errs.AlreadyExists, "collection %q already exists", name)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// GetCollection returns the collection and its vector size.
func (s *Qdrant) GetCollection(ctx context.Context, name string) (Collection, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return Collection{}, s.wrap(err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return Collection{Name: name, Size: int(size)}, nil
}

// DeleteCollection removes the collection and all its vectors.
func (s *Qdrant) DeleteCollection(ctx context.Context, name string) error {
	log.Debug("Deleting qdrant collection %s", name)
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return s.wrap(err)
	}
	return nil
}

// CreateDefaultCollection sets up the default collection. Safe to call
// on every startup.
func (s *Qdrant) CreateDefaultCollection(ctx context.Context, size int) error {
	err := s.CreateCollection(ctx, model.DefaultCollectionName, size)
	if err != nil && !errs.Is(err, errs.AlreadyExists) {
		return err
	}
	return nil
}

// Query returns the content of the limit closest points.
func (s *Qdrant) Query(ctx context.Context, vector []float64, collection string, limit int) ([]string, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(toFloat32(vector)...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	results := make([]string, 0, len(points))
	for _, point := range points {
		if content, ok := point.Payload[contentProperty]; ok {
			results = append(results, content.GetStringValue())
		}
	}
	return results, nil
}

// InsertEmbeddings upserts one point per chunk, tagged with the source
// document id.
func (s *Qdrant) InsertEmbeddings(ctx context.Context, documentID uuid.UUID, collection string, content []string, vectors [][]float64) error {
	if len(content) != len(vectors) {
		return errs.New(errs.Embedding, "got %d embeddings for %d chunks", len(vectors), len(content))
	}

	log.Debug("Inserting %d vectors into qdrant collection %s", len(vectors), collection)

	points := make([]*qdrant.PointStruct, len(content))
	for i, chunk := range content {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(toFloat32(vectors[i])...),
			Payload: map[string]*qdrant.Value{
				contentProperty:    qdrant.NewValueString(chunk),
				documentIDProperty: qdrant.NewValueString(documentID.String()),
			},
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// DeleteEmbeddings removes every point belonging to the document.
func (s *Qdrant) DeleteEmbeddings(ctx context.Context, collection string, documentID uuid.UUID) error {
	log.Debug("Deleting vectors of document %s from qdrant collection %s", documentID, collection)

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: s.documentFilter(documentID),
			},
		},
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// CountVectors returns the exact number of points stored for the
// document.
func (s *Qdrant) CountVectors(ctx context.Context, collection string, documentID uuid.UUID) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         s.documentFilter(documentID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, s.wrap(err)
	}
	return int(count), nil
}

func (s *Qdrant) documentFilter(documentID uuid.UUID) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(documentIDProperty, documentID.String()),
		},
	}
}

func (s *Qdrant) wrap(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return errs.Wrap(errs.DoesNotExist, err)
	case codes.AlreadyExists:
		return errs.Wrap(errs.AlreadyExists, err)
	}
	return errs.Wrap(errs.Qdrant, err)
}

// splitHostPort extracts host and port from a url that may or may not
// carry a scheme.
func splitHostPort(rawurl string, defaultPort int) (string, int, error) {
	if !strings.Contains(rawurl, "://") {
		rawurl = "http://" + rawurl
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", 0, err
	}
	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, err
		}
	}
	return u.Hostname(), port, nil
}
