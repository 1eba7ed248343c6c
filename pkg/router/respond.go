package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes a JSON response with status 200 unless one was set already.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus writes a JSON response with the provided status code.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data interface{}) error {
	ctx.SetStatusCode(status)
	return WriteJSON(ctx, data)
}

// WriteJSONError writes a JSON error response as {"error": message}.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteJSONDetail writes a JSON error response as {"detail": message}, the
// shape RAG clients read error text from.
func WriteJSONDetail(ctx *fasthttp.RequestCtx, status int, detail string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"detail": detail})
}

// WriteJSONOk writes a simple OK JSON response.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]interface{}) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(data)
}

// DecodeJSONBody decodes the request body into v. It writes a 400 and
// returns false when the body is not valid JSON.
func DecodeJSONBody(ctx *fasthttp.RequestCtx, v interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
