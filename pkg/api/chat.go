package api

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/auth"
	"wolfie/pkg/chat"
	"wolfie/pkg/logger"
	"wolfie/pkg/router"
	"wolfie/pkg/store"
	"wolfie/pkg/telemetry"
)

type SubmitRequest struct {
	Text        string            `json:"text"`
	Attachments []chat.Attachment `json:"attachments"`
}

type SubmitResponse struct {
	Result chat.Result `json:"result"`
	State  chat.State  `json:"state"`
}

type ProgressResponse struct {
	Busy     bool          `json:"busy"`
	Progress chat.Progress `json:"progress"`
	Label    string        `json:"label,omitempty"`
}

func emptyState() chat.State {
	return chat.State{Messages: []chat.Message{}}
}

// PostChatMessage runs one submission and answers with its result and the
// new conversation state. A second submission while one is running gets 409.
func (a *API) PostChatMessage(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	tr := telemetry.Track("api.chat_submit")
	defer tr.Finish()

	var req SubmitRequest
	if !router.DecodeJSONBody(ctx, &req) {
		return
	}
	o := a.d.Chats.Get(s.ID)

	tr.Mark("submit")
	res, err := o.Submit(context.Background(), req.Text, req.Attachments)
	if errors.Is(err, chat.ErrBusy) {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	if err != nil {
		logger.Error("chat_submit_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, chat.FallbackText)
		return
	}
	tr.Set("outcome", string(res.Outcome))
	chatSubmissions.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome != chat.OutcomeIgnored {
		chatDuration.Observe(res.Elapsed.Seconds())
		a.recordActivity(s.UserID, res.Outcome, len(req.Attachments))
	}

	tr.Mark("encode_response")
	_ = router.WriteJSON(ctx, SubmitResponse{Result: res, State: o.State()})
}

func (a *API) GetChatMessages(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	if o, ok := a.d.Chats.Peek(s.ID); ok {
		_ = router.WriteJSON(ctx, o.State())
		return
	}
	_ = router.WriteJSON(ctx, emptyState())
}

// ClearChatMessages empties the conversation. A running submission keeps
// going but its reply is dropped.
func (a *API) ClearChatMessages(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	state := emptyState()
	if o, ok := a.d.Chats.Peek(s.ID); ok {
		o.Clear()
		state = o.State()
	}
	_ = router.WriteJSON(ctx, state)
}

func (a *API) GetChatProgress(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	var resp ProgressResponse
	if o, ok := a.d.Chats.Peek(s.ID); ok {
		p := o.Progress()
		resp = ProgressResponse{Busy: o.Busy(), Progress: p, Label: p.Label()}
	}
	_ = router.WriteJSON(ctx, resp)
}

// GetChatActivity returns the caller's chat counters.
func (a *API) GetChatActivity(ctx *fasthttp.RequestCtx) {
	s, _ := auth.SessionFrom(ctx)
	if a.d.Store == nil {
		_ = router.WriteJSON(ctx, store.Activity{UserID: s.UserID})
		return
	}
	act, err := a.d.Store.GetActivity(s.UserID)
	if err != nil {
		logger.Error("activity_read_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to read activity")
		return
	}
	_ = router.WriteJSON(ctx, act)
}

func (a *API) recordActivity(userID string, outcome chat.Outcome, docs int) {
	if a.d.Store == nil {
		return
	}
	now := time.Now().UTC()
	_, err := a.d.Store.RecordActivity(userID, func(act *store.Activity) {
		act.Submissions++
		switch outcome {
		case chat.OutcomeAnswered:
			act.Answered++
		case chat.OutcomeFailed:
			act.Failed++
		}
		act.Documents += docs
		act.LastSeen = now
	})
	if err != nil {
		logger.Warn("activity_record_failed", "error", err)
	}
}
