package api

import (
	"github.com/valyala/fasthttp"

	"wolfie/pkg/auth"
	"wolfie/pkg/catalog"
	"wolfie/pkg/router"
	"wolfie/pkg/telemetry"
)

type DashboardResponse struct {
	Greeting string             `json:"greeting"`
	Heading  string             `json:"heading"`
	Tagline  string             `json:"tagline"`
	Cards    []catalog.Card     `json:"cards"`
	Menu     []catalog.MenuItem `json:"menu"`
}

type ProspectusResponse struct {
	Programs []catalog.Summary `json:"programs"`
}

type ProgramResponse struct {
	Program        catalog.Program `json:"program"`
	DownloadBucket string          `json:"downloadBucketId,omitempty"`
}

type WolfieResponse struct {
	Title string `json:"title"`
	Intro string `json:"intro"`
	State any    `json:"state"`
}

// Landing serves the public home page, or sends signed-in users to the
// dashboard.
func (a *API) Landing(ctx *fasthttp.RequestCtx) {
	if _, ok := auth.SessionFrom(ctx); ok {
		ctx.Redirect("/dashboard", fasthttp.StatusFound)
		return
	}
	_ = router.WriteJSON(ctx, a.d.Catalog.Landing)
}

func (a *API) Menu(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]any{"items": a.d.Catalog.Menu})
}

func (a *API) Dashboard(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	name := s.FirstName
	if name == "" {
		name = "there"
	}
	c := a.d.Catalog
	_ = router.WriteJSON(ctx, DashboardResponse{
		Greeting: "Hello, " + name + "!",
		Heading:  c.Dashboard.Heading,
		Tagline:  c.Dashboard.Tagline,
		Cards:    c.Dashboard.Cards,
		Menu:     c.Menu,
	})
}

func (a *API) Prospectus(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, ProspectusResponse{Programs: a.d.Catalog.Summaries()})
}

func (a *API) ProgramDetail(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.program_detail")
	defer tr.Finish()

	slug := router.PathParam(ctx, "program")
	p, ok := a.d.Catalog.Program(slug)
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "Program not found")
		return
	}
	resp := ProgramResponse{Program: p}
	if p.ProspectusFileID != "" {
		resp.DownloadBucket = a.d.Catalog.ProspectusBucket
	}
	_ = router.WriteJSON(ctx, resp)
}

func (a *API) Resources(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, a.d.Catalog.Resources)
}

// WolfiePage returns the chat page: its copy and the caller's conversation.
func (a *API) WolfiePage(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	var state any = emptyState()
	if o, ok := a.d.Chats.Peek(s.ID); ok {
		state = o.State()
	}
	_ = router.WriteJSON(ctx, WolfieResponse{
		Title: "Ask Wolfie",
		Intro: "Ask about programs, admission, and enrollment, or attach a document to ask about it.",
		State: state,
	})
}
