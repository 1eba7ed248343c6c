package rag

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"wolfie/pkg/logger"
)

const collectionName = "documents"

// Hit is one retrieved chunk.
type Hit struct {
	DocID      string
	ChunkID    int
	Filename   string
	Content    string
	Similarity float32
}

// VectorStore keeps document chunks in a chromem collection.
type VectorStore struct {
	db   *chromem.DB
	docs *chromem.Collection
}

// NewEmbeddingFunc picks the chromem embedding function for the config.
func NewEmbeddingFunc(cfg Config) (chromem.EmbeddingFunc, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.EmbeddingAPIKey == "" {
			return nil, fmt.Errorf("openai embeddings need WOLFIE_RAG_EMBEDDING_API_KEY or OPENAI_API_KEY")
		}
		return chromem.NewEmbeddingFuncOpenAI(cfg.EmbeddingAPIKey, chromem.EmbeddingModelOpenAI(cfg.EmbeddingModel)), nil
	case "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.EmbeddingModel, cfg.EmbeddingBaseURL), nil
	case "openai-compat":
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, nil), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// OpenVectorStore opens (or creates) the persistent store under dir.
func OpenVectorStore(dir string, embed chromem.EmbeddingFunc) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return newVectorStore(db, embed)
}

// NewMemoryVectorStore keeps everything in memory.
func NewMemoryVectorStore(embed chromem.EmbeddingFunc) (*VectorStore, error) {
	return newVectorStore(chromem.NewDB(), embed)
}

func newVectorStore(db *chromem.DB, embed chromem.EmbeddingFunc) (*VectorStore, error) {
	docs, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create %s collection: %w", collectionName, err)
	}
	logger.Info("vector_store_opened", "collection", collectionName, "chunks", docs.Count())
	return &VectorStore{db: db, docs: docs}, nil
}

// Count returns the number of stored chunks.
func (vs *VectorStore) Count() int { return vs.docs.Count() }

// Replace drops every chunk of docID and stores chunks in its place.
func (vs *VectorStore) Replace(ctx context.Context, docID, filename string, chunks []string) error {
	if err := vs.DeleteDoc(ctx, docID); err != nil {
		return err
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      docID + ":" + strconv.Itoa(i),
			Content: c,
			Metadata: map[string]string{
				"doc_id":   docID,
				"chunk_id": strconv.Itoa(i),
				"filename": filename,
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := vs.docs.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("store chunks for %s: %w", docID, err)
	}
	return nil
}

// DeleteDoc removes every chunk of docID.
func (vs *VectorStore) DeleteDoc(ctx context.Context, docID string) error {
	if vs.docs.Count() == 0 {
		return nil
	}
	if err := vs.docs.Delete(ctx, map[string]string{"doc_id": docID}, nil); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", docID, err)
	}
	return nil
}

// Search returns up to k chunks ordered by cosine similarity to query.
func (vs *VectorStore) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	n := vs.docs.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := vs.docs.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, _ := strconv.Atoi(r.Metadata["chunk_id"])
		hits = append(hits, Hit{
			DocID:      r.Metadata["doc_id"],
			ChunkID:    id,
			Filename:   r.Metadata["filename"],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}
