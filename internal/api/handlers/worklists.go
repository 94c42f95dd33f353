package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/phone"
)

type createWorklistRequest struct {
	Name    string             `json:"name"`
	Entries []worklistEntryReq `json:"entries"`
}

type worklistEntryReq struct {
	Number      string `json:"number"`
	Name        string `json:"name"`
	SelectionID string `json:"selection_id"`
	RequestID   string `json:"request_id"`
}

type worklistResponse struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	CreatedAt time.Time           `json:"created_at"`
	Entries   []worklistEntryResp `json:"entries"`
}

type worklistEntryResp struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	SelectionID string `json:"selection_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func (h *HandlerSet) createWorklist(ctx *fiber.Ctx) error {
	var req createWorklistRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "name is required")
	}
	if len(req.Entries) == 0 {
		return fiber.NewError(http.StatusBadRequest, "at least one entry is required")
	}

	region := h.container.Config.Session.DefaultRegion
	entries := make([]domain.WorklistEntry, 0, len(req.Entries))
	for i, entry := range req.Entries {
		if !phone.Valid(entry.Number) {
			return fiber.NewError(http.StatusBadRequest,
				fmt.Sprintf("entry %d: invalid phone number %q", i, entry.Number))
		}
		entries = append(entries, domain.WorklistEntry{
			ID:          uuid.NewString(),
			Number:      phone.NormalizeE164(entry.Number, region),
			Name:        entry.Name,
			SelectionID: entry.SelectionID,
			RequestID:   entry.RequestID,
			Status:      domain.QueueStatusPending,
		})
	}

	worklist := &domain.Worklist{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}

	if err := h.container.Repositories().Worklists.Create(ctx.Context(), worklist); err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toWorklistResponse(worklist))
}

func (h *HandlerSet) getWorklist(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid worklist id")
	}

	worklist, err := h.container.Repositories().Worklists.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(toWorklistResponse(worklist))
}

func toWorklistResponse(worklist *domain.Worklist) worklistResponse {
	entries := make([]worklistEntryResp, 0, len(worklist.Entries))
	for _, entry := range worklist.Entries {
		entries = append(entries, worklistEntryResp{
			ID:          entry.ID,
			Number:      entry.Number,
			Name:        entry.Name,
			SelectionID: entry.SelectionID,
			RequestID:   entry.RequestID,
		})
	}
	return worklistResponse{
		ID:        worklist.ID,
		Name:      worklist.Name,
		CreatedAt: worklist.CreatedAt,
		Entries:   entries,
	}
}
