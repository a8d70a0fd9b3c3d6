package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	requestIDLocal = "requestid"
	userIDLocal    = "user_id"
)

// requestLogger tags the user context with the request id and logs each
// request once it has been handled.
func requestLogger(logger logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if id, ok := c.Locals(requestIDLocal).(string); ok && id != "" {
			c.SetUserContext(logging.WithRequestID(c.UserContext(), id))
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classify(err)
		}

		logger.Info(c.UserContext(), "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
		)

		return err
	}
}

// bearerAuth verifies the access token and stores the caller's id in Locals.
func bearerAuth(secretKey []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(common.AccessTokenHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return common.ErrUnauthorized
		}

		userID, err := auth.GetUserIDFromToken(strings.TrimSpace(token), secretKey)
		if err != nil {
			return err
		}

		c.Locals(userIDLocal, userID)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}
