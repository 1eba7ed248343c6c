package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"wolfie/pkg/auth"
	"wolfie/pkg/router"
)

var (
	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wolfie_go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wolfie_go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)

	activeChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wolfie_chat_conversations",
		Help: "Conversations held in memory.",
	})

	chatSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wolfie_chat_submissions_total",
		Help: "Chat submissions by outcome.",
	}, []string{"outcome"})

	chatDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wolfie_chat_submission_seconds",
		Help:    "Time from submission to reply.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 90},
	})

	fileDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wolfie_file_downloads_total",
		Help: "Storage proxy requests by operation and result.",
	}, []string{"op", "result"})

	logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wolfie_logins_total",
		Help: "Sign-in attempts by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(gcPauseTotal)
	prometheus.MustRegister(heapAlloc)
	prometheus.MustRegister(activeChats)
	prometheus.MustRegister(chatSubmissions)
	prometheus.MustRegister(chatDuration)
	prometheus.MustRegister(fileDownloads)
	prometheus.MustRegister(logins)
}

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) func(ctx *fasthttp.RequestCtx) {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

func pprofNamed(ctx *fasthttp.RequestCtx) {
	wrapHTTPHandler(pprof.Handler(router.PathParam(ctx, "name")))(ctx)
}

// RegisterRoutes wires all portal routes onto the provided router.
func RegisterRoutes(r *router.Router, a *API) {
	// public pages
	r.GET("/", a.Landing)
	r.GET("/login", a.LoginInfo)
	r.POST("/login", a.Login)
	r.GET("/menu", a.Menu)
	r.GET("/prospectus", a.Prospectus)
	r.GET("/resources", a.Resources)

	// signed-in pages
	r.GET("/dashboard", auth.RequirePage(a.Dashboard))
	r.GET("/prospectus/{program}", auth.RequirePage(a.ProgramDetail))
	r.GET("/wolfie", auth.RequirePage(a.WolfiePage))

	// sign out
	r.POST("/api/auth/signout", a.SignOut)
	r.GET("/api/auth/signout", a.SignOutRedirect)

	// storage proxy
	r.GET("/api/files/{bucketId}/{fileId}", a.DownloadFile)
	r.GET("/api/files/{bucketId}/{fileId}/verify", a.VerifyFile)

	// chat
	r.POST("/api/chat/messages", auth.RequireAPI(a.PostChatMessage))
	r.GET("/api/chat/messages", auth.RequireAPI(a.GetChatMessages))
	r.DELETE("/api/chat/messages", auth.RequireAPI(a.ClearChatMessages))
	r.GET("/api/chat/progress", auth.RequireAPI(a.GetChatProgress))
	r.GET("/api/chat/activity", auth.RequireAPI(a.GetChatActivity))

	// admin debug routes
	r.GET("/admin/debug/prometheus", auth.RequireAdmin(wrapHTTPHandler(promhttp.Handler())))
	r.GET("/admin/debug/pprof/", auth.RequireAdmin(wrapHTTPHandler(http.HandlerFunc(pprof.Index))))
	r.GET("/admin/debug/pprof/cmdline", auth.RequireAdmin(wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline))))
	r.GET("/admin/debug/pprof/profile", auth.RequireAdmin(wrapHTTPHandler(http.HandlerFunc(pprof.Profile))))
	r.GET("/admin/debug/pprof/symbol", auth.RequireAdmin(wrapHTTPHandler(http.HandlerFunc(pprof.Symbol))))
	r.GET("/admin/debug/pprof/trace", auth.RequireAdmin(wrapHTTPHandler(http.HandlerFunc(pprof.Trace))))
	r.GET("/admin/debug/pprof/{name}", auth.RequireAdmin(pprofNamed))
}

// Handler returns the routed portal handler, not yet behind the gateway.
func Handler(a *API) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, a)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	return r.Handler
}
