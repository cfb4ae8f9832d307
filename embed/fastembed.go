package embed

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

// Fastembed talks to a feserver instance, a small sidecar that runs
// fastembed models on whatever GPU it can find.
type Fastembed struct {
	url    string
	client *http.Client
}

type fastembedRequest struct {
	Model   string   `json:"model"`
	Content []string `json:"content"`
}

type fastembedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewFastembed returns a client for the feserver at url.
func NewFastembed(url string) *Fastembed {
	log.Info("Initializing remote fastembed at %s", url)
	return &Fastembed{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{},
	}
}

// ID implements Embedder.
func (f *Fastembed) ID() string {
	return "fembed"
}

// DefaultModel implements Embedder.
func (f *Fastembed) DefaultModel() Model {
	return Model{Name: model.DefaultCollectionModel, Size: model.DefaultCollectionSize}
}

// ListModels returns the models the feserver can run.
func (f *Fastembed) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/list", nil)
	if err != nil {
		return nil, errs.Wrap(errs.Http, err)
	}

	var sizes map[string]int
	if err := f.do(req, &sizes); err != nil {
		return nil, err
	}

	models := make([]Model, 0, len(sizes))
	for name, size := range sizes {
		models = append(models, Model{Name: name, Size: size})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// Embed implements Embedder.
func (f *Fastembed) Embed(ctx context.Context, content []string, model string) ([][]float64, error) {
	body, err := jsoniter.Marshal(fastembedRequest{Model: model, Content: content})
	if err != nil {
		return nil, errs.Wrap(errs.Json, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.Http, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var response fastembedResponse
	if err := f.do(req, &response); err != nil {
		return nil, err
	}

	if len(response.Embeddings) != len(content) {
		return nil, errs.New(errs.Embedding, "fembed returned %d embeddings for %d inputs", len(response.Embeddings), len(content))
	}
	log.Debug("Embedded %d chunk(s) with %s in %s", len(content), model, time.Since(start))
	return response.Embeddings, nil
}

func (f *Fastembed) do(req *http.Request, out interface{}) error {
	res, err := f.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Http, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errs.Wrap(errs.Http, err)
	}
	if res.StatusCode != http.StatusOK {
		return errs.New(errs.Embedding, "fembed %s: %s (%s)", req.URL.Path, res.Status, strings.TrimSpace(string(body)))
	}
	if err := jsoniter.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.Json, err)
	}
	return nil
}
