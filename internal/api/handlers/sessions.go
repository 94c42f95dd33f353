package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/engine"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/service/common"
	sessionsvc "github.com/FinalPatel1678/twilio-voice-sdk/internal/service/session"
)

type createSessionRequest struct {
	Identity   string             `json:"identity"`
	RequestID  string             `json:"request_id"`
	WorklistID *uuid.UUID         `json:"worklist_id"`
	Entries    []worklistEntryReq `json:"entries"`
}

type dialRequest struct {
	Number string `json:"number"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type sessionResponse struct {
	SessionID      uuid.UUID          `json:"session_id"`
	Identity       string             `json:"identity"`
	AgentState     domain.AgentState  `json:"agent_state"`
	DeviceReady    bool               `json:"device_ready"`
	DeviceError    string             `json:"device_error,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	OnCall         bool               `json:"on_call"`
	Muted          bool               `json:"muted"`
	CurrentNumber  string             `json:"current_number,omitempty"`
	ElapsedSeconds int64              `json:"elapsed_seconds"`
	AutoDial       autoDialResponse   `json:"auto_dial"`
	SummaryPending bool               `json:"summary_pending"`
	RunID          *uuid.UUID         `json:"run_id,omitempty"`
	Worklist       []sessionEntryResp `json:"worklist"`
}

type autoDialResponse struct {
	IsActive     bool `json:"is_active"`
	IsPaused     bool `json:"is_paused"`
	CurrentIndex int  `json:"current_index"`
}

type sessionEntryResp struct {
	ID        string             `json:"id"`
	Number    string             `json:"number"`
	Name      string             `json:"name"`
	Status    domain.QueueStatus `json:"status"`
	LastError string             `json:"last_error,omitempty"`
	Attempt   *attemptResp       `json:"attempt,omitempty"`
}

type attemptResp struct {
	Status     domain.AttemptStatus `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	DurationMs int64                `json:"duration_ms"`
	CallSID    string               `json:"call_sid,omitempty"`
	Error      string               `json:"error,omitempty"`
	Recordings []string             `json:"recordings,omitempty"`
}

type attemptHistoryResponse struct {
	Attempts []attemptRecordResp `json:"attempts"`
	NextPage string              `json:"next_page_token,omitempty"`
}

type attemptRecordResp struct {
	ID         uuid.UUID            `json:"id"`
	EntryID    string               `json:"entry_id,omitempty"`
	Number     string               `json:"number"`
	Outcome    domain.AttemptStatus `json:"outcome"`
	CallSID    string               `json:"call_sid,omitempty"`
	Error      string               `json:"error,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	AutoDial   bool                 `json:"auto_dial"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func (h *HandlerSet) createSession(ctx *fiber.Ctx) error {
	var req createSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	entries := make([]domain.WorklistEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, domain.WorklistEntry{
			Number:      entry.Number,
			Name:        entry.Name,
			SelectionID: entry.SelectionID,
			RequestID:   entry.RequestID,
		})
	}

	eng, err := h.sessions.Create(ctx.Context(), sessionsvc.CreateInput{
		Identity:   req.Identity,
		RequestID:  req.RequestID,
		WorklistID: req.WorklistID,
		Entries:    entries,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) getSession(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) closeSession(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.sessions.Close(id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) startAutoDial(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx.Context()); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) pauseAutoDial(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	if err := eng.Pause(); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) resumeAutoDial(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	if err := eng.Resume(); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) stopAutoDial(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	eng.Stop()
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) acknowledgeSummary(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	eng.AcknowledgeSummary()
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) dial(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}

	var req dialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.Number == "" {
		return fiber.NewError(http.StatusBadRequest, "number is required")
	}

	if err := eng.Dial(ctx.Context(), req.Number); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) hangUp(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}
	eng.HangUp()
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) setMute(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}

	var req muteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	if err := eng.SetMute(req.Muted); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) removeEntry(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(ctx.Params("index"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid entry index")
	}

	if err := eng.RemoveEntry(index); err != nil {
		return translateError(err)
	}
	return ctx.JSON(toSessionResponse(eng.State()))
}

func (h *HandlerSet) listAttempts(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}

	limit := ctx.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 500")
	}

	var pagingState []byte
	if token := ctx.Query("page_token"); token != "" {
		pagingState, err = common.DecodeBase64(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	records, nextState, err := h.container.Repositories().Attempts.ListBySession(ctx.Context(), id, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := attemptHistoryResponse{Attempts: make([]attemptRecordResp, 0, len(records))}
	for _, record := range records {
		resp.Attempts = append(resp.Attempts, attemptRecordResp{
			ID:         record.ID,
			EntryID:    record.EntryID,
			Number:     record.Number,
			Outcome:    record.Outcome,
			CallSID:    record.CallSID,
			Error:      record.Error,
			DurationMs: record.Duration.Milliseconds(),
			AutoDial:   record.AutoDial,
			OccurredAt: record.OccurredAt,
		})
	}
	if len(nextState) > 0 {
		resp.NextPage = common.EncodeBase64(nextState)
	}

	return ctx.JSON(resp)
}

func (h *HandlerSet) runStats(ctx *fiber.Ctx) error {
	eng, err := h.engineFromPath(ctx)
	if err != nil {
		return err
	}

	snap := eng.State()
	if snap.RunID == uuid.Nil {
		return fiber.NewError(http.StatusNotFound, "session has no dial run")
	}

	stats, err := h.container.Repositories().Runs.GetStats(ctx.Context(), snap.RunID)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(fiber.Map{
		"run_id":    snap.RunID,
		"placed":    stats.Placed,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"voicemail": stats.Voicemail,
		"no_answer": stats.NoAnswer,
		"busy":      stats.Busy,
		"canceled":  stats.Canceled,
		"skipped":   stats.Skipped,
	})
}

func (h *HandlerSet) engineFromPath(ctx *fiber.Ctx) (*engine.Engine, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	eng, err := h.sessions.Get(id)
	if err != nil {
		return nil, translateError(err)
	}
	return eng, nil
}

func toSessionResponse(snap engine.Snapshot) sessionResponse {
	worklist := make([]sessionEntryResp, 0, len(snap.Worklist))
	for _, entry := range snap.Worklist {
		item := sessionEntryResp{
			ID:        entry.ID,
			Number:    entry.Number,
			Name:      entry.Name,
			Status:    entry.Status,
			LastError: entry.LastError,
		}
		if entry.Attempt != nil {
			item.Attempt = &attemptResp{
				Status:     entry.Attempt.Status,
				Timestamp:  entry.Attempt.Timestamp,
				DurationMs: entry.Attempt.Duration.Milliseconds(),
				CallSID:    entry.Attempt.CallSID,
				Error:      entry.Attempt.Error,
				Recordings: entry.Attempt.Recordings,
			}
		}
		worklist = append(worklist, item)
	}

	var runID *uuid.UUID
	if snap.RunID != uuid.Nil {
		id := snap.RunID
		runID = &id
	}

	return sessionResponse{
		SessionID:      snap.SessionID,
		Identity:       snap.Identity,
		AgentState:     snap.AgentState,
		DeviceReady:    snap.DeviceReady,
		DeviceError:    snap.DeviceError,
		ErrorMessage:   snap.ErrorMessage,
		OnCall:         snap.OnCall,
		Muted:          snap.Muted,
		CurrentNumber:  snap.CurrentNumber,
		ElapsedSeconds: int64(snap.Elapsed.Seconds()),
		AutoDial: autoDialResponse{
			IsActive:     snap.AutoDial.IsActive,
			IsPaused:     snap.AutoDial.IsPaused,
			CurrentIndex: snap.AutoDial.CurrentIndex,
		},
		SummaryPending: snap.SummaryPending,
		RunID:          runID,
		Worklist:       worklist,
	}
}
