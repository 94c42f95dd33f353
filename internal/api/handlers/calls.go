package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/engine"
)

type lookupCallRequest struct {
	CallSID string `json:"callSid"`
}

// mintToken issues a short-lived voice access token for the requested
// identity. Falls back to a placeholder identity the way the softphone
// client expects when none is supplied.
func (h *HandlerSet) mintToken(ctx *fiber.Ctx) error {
	identity := ctx.Query("identity")

	token, err := h.container.Stores().Minter.Token(ctx.Context(), identity)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(fiber.Map{
		"token":    token,
		"identity": identity,
	})
}

// lookupCall resolves the child leg of a finished call from the provider
// REST API. The engine classifies outcomes from this record.
func (h *HandlerSet) lookupCall(ctx *fiber.Ctx) error {
	var req lookupCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.CallSID == "" {
		return fiber.NewError(http.StatusBadRequest, "callSid is required")
	}

	detail, err := h.container.Stores().Lookup.FetchCallDetail(ctx.Context(), req.CallSID)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(fiber.Map{"call": detail})
}

// inCall reports whether the candidate number is claimed by an active
// call. Without a number it falls back to the shared on-call flag.
func (h *HandlerSet) inCall(ctx *fiber.Ctx) error {
	number := ctx.Query("candidatePhone")
	if number == "" {
		onCall, err := h.container.Stores().Flags.Get(ctx.Context(), engine.OnCallFlagKey)
		if err != nil {
			return translateError(err)
		}
		message := "No active call"
		if onCall {
			message = "A session is currently on a call"
		}
		return ctx.JSON(fiber.Map{"isInCall": onCall, "message": message})
	}

	held, _, err := h.container.Stores().Presence.Check(ctx.Context(), number)
	if err != nil {
		return translateError(err)
	}
	message := "Number is not on an active call"
	if held {
		message = "Number is on an active call with another agent"
	}
	return ctx.JSON(fiber.Map{"isInCall": held, "message": message})
}
