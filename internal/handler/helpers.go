package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseIDParam(c *fiber.Ctx, key string) (uint, bool) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return uint(parsed), true
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		ctx := base.With()
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			ctx = ctx.Str("correlation_id", correlation)
		}
		if userID := middleware.UserID(c); userID != "" {
			ctx = ctx.Str("user_id", userID)
		}
		logger = ctx.Logger()
	}
	return &logger
}

// respondError renders err and logs it when it is not a domain rejection.
func respondError(base zerolog.Logger, c *fiber.Ctx, err error, msg string) error {
	if apperror.CodeOf(err) == apperror.CodeInternal {
		requestLogger(base, c).Error().Err(err).Msg(msg)
	}
	return utils.SendAppError(c, err)
}

func invalidID(c *fiber.Ctx, name string) error {
	return utils.SendAppError(c, apperror.Validation("invalid "+name))
}

func invalidPayload(c *fiber.Ctx) error {
	return utils.SendAppError(c, apperror.Validation("invalid request payload"))
}
