package rag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"wolfie/pkg/logger"
	"wolfie/pkg/router"
)

// IngestResponse answers a successful upload.
type IngestResponse struct {
	Status        string `json:"status"`
	DocID         string `json:"doc_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// DefaultRequestTopK applies when a query omits top_k.
const DefaultRequestTopK = 5

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
	// TopK is DefaultRequestTopK when absent. An explicit null or 0 falls
	// back to the service's configured TopK.
	TopK *int `json:"top_k"`
}

func (r *QueryRequest) UnmarshalJSON(b []byte) error {
	type plain QueryRequest
	def := DefaultRequestTopK
	p := plain{TopK: &def}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = QueryRequest(p)
	return nil
}

// QueryResponse answers a question.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Handler serves the service API.
func Handler(s *Service) fasthttp.RequestHandler {
	r := router.New()
	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	r.POST("/api/v1/ingest", s.ingest)
	r.POST("/api/v1/ingest/ingest-from-folder", s.ingestFolder)
	r.GET("/api/v1/ingest/source-files", s.sourceFiles)
	r.POST("/api/v1/query", s.query)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONDetail(ctx, fasthttp.StatusNotFound, "Not Found")
	})
	return withCORS(s.cfg.CORSOrigins, r.Handler)
}

func withCORS(origins []string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	allowAll := originListed("*", origins)
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)
		origin := router.GetHeader(ctx, "Origin")
		if origin != "" && (allowAll || originListed(origin, origins)) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(ctx)
	}
}

func originListed(origin string, list []string) bool {
	for _, o := range list {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (s *Service) root(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{
		"message": "Wolfie RAG API",
		"health":  "/health",
		"ingest":  "/api/v1/ingest",
		"query":   "/api/v1/query",
	})
}

func (s *Service) health(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "healthy"})
}

func (s *Service) ingest(ctx *fasthttp.RequestCtx) {
	form, err := ctx.MultipartForm()
	if err != nil {
		router.WriteJSONDetail(ctx, fasthttp.StatusBadRequest, "multipart form with doc_id and file is required")
		return
	}
	docID := ""
	if v := form.Value["doc_id"]; len(v) > 0 {
		docID = strings.TrimSpace(v[0])
	}
	if docID == "" {
		router.WriteJSONDetail(ctx, fasthttp.StatusUnprocessableEntity, "doc_id is required")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		router.WriteJSONDetail(ctx, fasthttp.StatusUnprocessableEntity, "file is required")
		return
	}
	fh := files[0]

	mediaType := fh.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	if err := s.CheckUpload(mediaType, fh.Size); err != nil {
		writeError(ctx, err)
		return
	}
	data, err := readPart(fh)
	if err != nil {
		writeError(ctx, err)
		return
	}

	n, err := s.IngestUpload(context.Background(), docID, fh.Filename, mediaType, data, true)
	if err != nil {
		logger.Error("ingest_failed", "doc_id", docID, "error", err)
		writeError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, IngestResponse{Status: "success", DocID: docID, ChunksCreated: n})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Service) ingestFolder(ctx *fasthttp.RequestCtx) {
	results, err := s.IngestFolder(context.Background())
	if errors.Is(err, ErrNoSourceDir) {
		router.WriteJSONDetail(ctx, fasthttp.StatusNotFound, "Source directory not found: "+s.cfg.SourceDir)
		return
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"total_files": len(results), "results": results})
}

func (s *Service) sourceFiles(ctx *fasthttp.RequestCtx) {
	files, err := s.SourceFiles()
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{
		"source_directory": s.cfg.SourceDir,
		"total_files":      len(files),
		"files":            files,
	})
}

func (s *Service) query(ctx *fasthttp.RequestCtx) {
	var req QueryRequest
	if !decodeDetail(ctx, &req) {
		return
	}
	topK := 0
	if req.TopK != nil {
		topK = *req.TopK
	}
	answer, sources, err := s.Answer(context.Background(), req.Question, topK)
	if err != nil {
		if !errors.Is(err, ErrEmptyQuestion) {
			logger.Error("query_failed", "error", err)
		}
		writeError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, QueryResponse{Answer: answer, Sources: sources})
}

func decodeDetail(ctx *fasthttp.RequestCtx, v any) bool {
	if len(ctx.PostBody()) == 0 {
		router.WriteJSONDetail(ctx, fasthttp.StatusUnprocessableEntity, "request body is required")
		return false
	}
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		router.WriteJSONDetail(ctx, fasthttp.StatusUnprocessableEntity, "invalid JSON body")
		return false
	}
	return true
}

// writeError maps service errors to status codes. Anything unexpected is a
// 500 carrying the error text.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	var tooLarge *TooLargeError
	var unsupported *UnsupportedTypeError
	switch {
	case errors.As(err, &tooLarge):
		router.WriteJSONDetail(ctx, fasthttp.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &unsupported),
		errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrEmptyQuestion),
		errors.Is(err, ErrInvalidDocID):
		router.WriteJSONDetail(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		router.WriteJSONDetail(ctx, fasthttp.StatusInternalServerError, err.Error())
	}
}
