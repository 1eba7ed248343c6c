package logger

import (
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

// headers whose values are masked before they reach the logs
var sensitiveHeaders = map[string]struct{}{
	"authorization":    {},
	"cookie":           {},
	"set-cookie":       {},
	"x-api-key":        {},
	"x-user-signature": {},
	"x-appwrite-key":   {},
}

func maskedValue(v string) string {
	if v == "" {
		return ""
	}
	l := utf8.RuneCountInString(v)
	if l <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

// RedactHeaderValue masks the value of sensitive headers and returns others unchanged.
func RedactHeaderValue(key, v string) string {
	if _, ok := sensitiveHeaders[strings.ToLower(key)]; ok {
		return maskedValue(v)
	}
	return v
}

// SafeHeadersFast builds a redacted header string for fasthttp requests.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		parts = append(parts, key+"="+RedactHeaderValue(key, string(v)))
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs a concise, safe summary of an incoming fasthttp request.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	Debug("incoming_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"remote", ctx.RemoteAddr().String(),
		"headers", SafeHeadersFast(ctx),
	)
}
