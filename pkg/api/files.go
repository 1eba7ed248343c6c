package api

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"wolfie/pkg/logger"
	"wolfie/pkg/router"
	"wolfie/pkg/storage"
	"wolfie/pkg/telemetry"
)

type DownloadResponse struct {
	Success bool              `json:"success"`
	Data    *storage.Download `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type VerifyResponse struct {
	Success bool          `json:"success"`
	Exists  bool          `json:"exists"`
	File    *storage.File `json:"file,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// fileParams reads and checks the bucket and file ids. Only buckets listed
// in the catalog can be proxied.
func (a *API) fileParams(ctx *fasthttp.RequestCtx) (string, string, bool) {
	bucket := router.PathParam(ctx, "bucketId")
	file := router.PathParam(ctx, "fileId")
	if bucket == "" || file == "" {
		_ = router.WriteJSONStatus(ctx, fasthttp.StatusBadRequest, DownloadResponse{Error: "bucket and file id are required"})
		return "", "", false
	}
	if !a.d.Catalog.AllowsBucket(bucket) {
		logger.Warn("file_bucket_rejected", "bucket", bucket)
		_ = router.WriteJSONStatus(ctx, fasthttp.StatusForbidden, DownloadResponse{Error: "bucket not allowed"})
		return "", "", false
	}
	return bucket, file, true
}

func downloadStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, storage.ErrTooLarge):
		return fasthttp.StatusRequestEntityTooLarge
	}
	return fasthttp.StatusBadGateway
}

// DownloadFile proxies a storage download as base64 JSON.
func (a *API) DownloadFile(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.download_file")
	defer tr.Finish()

	bucket, file, ok := a.fileParams(ctx)
	if !ok {
		return
	}
	tr.Mark("download")
	d, err := a.d.Files.Download(context.Background(), bucket, file)
	if err != nil {
		fileDownloads.WithLabelValues("download", "error").Inc()
		logger.Warn("file_download_failed", "bucket", bucket, "file", file, "error", err)
		_ = router.WriteJSONStatus(ctx, downloadStatus(err), DownloadResponse{Error: storage.UserMessage(err)})
		return
	}
	fileDownloads.WithLabelValues("download", "ok").Inc()
	logger.Info("file_downloaded", "bucket", bucket, "file", file, "name", d.Name, "size", humanize.IBytes(uint64(d.Size)))
	_ = router.WriteJSON(ctx, DownloadResponse{Success: true, Data: d})
}

// VerifyFile reports whether a file exists.
func (a *API) VerifyFile(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.verify_file")
	defer tr.Finish()

	bucket, file, ok := a.fileParams(ctx)
	if !ok {
		return
	}
	v, err := a.d.Files.Verify(context.Background(), bucket, file)
	if err != nil {
		fileDownloads.WithLabelValues("verify", "error").Inc()
		logger.Warn("file_verify_failed", "bucket", bucket, "file", file, "error", err)
		_ = router.WriteJSONStatus(ctx, downloadStatus(err), VerifyResponse{Error: storage.UserMessage(err)})
		return
	}
	fileDownloads.WithLabelValues("verify", "ok").Inc()
	_ = router.WriteJSON(ctx, VerifyResponse{Success: true, Exists: v.Exists, File: v.File})
}
