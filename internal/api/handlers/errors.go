package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrInvalidNumber):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrConflict) || errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, apperrors.ErrAlreadyInCall):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, apperrors.ErrDeviceInit):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, apperrors.ErrPlacement) || errors.Is(err, apperrors.ErrOutcomeLookup):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
