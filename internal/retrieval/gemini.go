package retrieval

import (
	"context"
	"fmt"
	"path/filepath"

	"google.golang.org/genai"
)

// geminiBackend adapts google.golang.org/genai to the backend interface.
// All methods are thin passthroughs; orchestration lives in Client.
type geminiBackend struct {
	client *genai.Client
}

func newGeminiBackend(ctx context.Context, apiKey string) (*geminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &geminiBackend{client: client}, nil
}

func (g *geminiBackend) ListStores(ctx context.Context) ([]StoreInfo, error) {
	var stores []StoreInfo
	for store, err := range g.client.FileSearchStores.All(ctx) {
		if err != nil {
			return nil, err
		}
		stores = append(stores, StoreInfo{ID: store.Name, DisplayName: store.DisplayName})
	}
	return stores, nil
}

func (g *geminiBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	store, err := g.client.FileSearchStores.Create(ctx, &genai.CreateFileSearchStoreConfig{
		DisplayName: displayName,
	})
	if err != nil {
		return "", err
	}
	return store.Name, nil
}

func (g *geminiBackend) DeleteStore(ctx context.Context, id string, force bool) error {
	err := g.client.FileSearchStores.Delete(ctx, id, &genai.DeleteFileSearchStoreConfig{
		Force: &force,
	})
	return err
}

// geminiOperation wraps the SDK's upload operation handle.
type geminiOperation struct {
	op *genai.UploadToFileSearchStoreOperation
}

func (o geminiOperation) Done() bool { return o.op.Done }

func (g *geminiBackend) StartUpload(ctx context.Context, path, storeID string) (Operation, error) {
	op, err := g.client.FileSearchStores.UploadToFileSearchStoreFromPath(ctx, path, storeID,
		&genai.UploadToFileSearchStoreConfig{DisplayName: filepath.Base(path)})
	if err != nil {
		return nil, err
	}
	return geminiOperation{op: op}, nil
}

func (g *geminiBackend) PollUpload(ctx context.Context, op Operation) (Operation, error) {
	gop, ok := op.(geminiOperation)
	if !ok {
		return nil, fmt.Errorf("unexpected operation type %T", op)
	}
	next, err := g.client.Operations.GetUploadToFileSearchStoreOperation(ctx, gop.op, nil)
	if err != nil {
		return nil, err
	}
	return geminiOperation{op: next}, nil
}

func (g *geminiBackend) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: opts.Temperature}
	if opts.StoreID != "" {
		cfg.Tools = []*genai.Tool{{
			FileSearch: &genai.FileSearch{FileSearchStoreNames: []string{opts.StoreID}},
		}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
