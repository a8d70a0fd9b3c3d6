package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

type handlers struct {
	files     FileAPI
	directory Authenticator
	logger    logging.Logger
}

type loginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type describeRequest struct {
	Description string `json:"description"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type purgeRequest struct {
	Password string `json:"password"`
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	token, err := h.directory.Login(c.UserContext(), req.UserName, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(loginResponse{Token: token})
}

// upload streams the raw request body into the file service. The declared
// size comes from Content-Length and is -1 for chunked bodies.
func (h *handlers) upload(c *fiber.Ctx) error {
	var body io.Reader = c.Context().RequestBodyStream()
	if body == nil {
		body = bytes.NewReader(c.Body())
	}

	declared := int64(c.Request().Header.ContentLength())
	if declared < 0 {
		declared = -1
	}

	fileName := c.Get(common.FileNameHeaderName)
	name := c.Query("name")
	if name == "" {
		name = fileName
	}

	f, err := h.files.Upload(c.UserContext(), services.UploadRequest{
		OwnerID:      currentUser(c),
		ProjectID:    c.Params("projectID"),
		Name:         name,
		FileName:     fileName,
		MimeType:     c.Get(fiber.HeaderContentType),
		Description:  c.Query("description"),
		DeclaredSize: declared,
		Body:         body,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(f)
}

func (h *handlers) listProject(c *fiber.Ctx) error {
	files, err := h.files.ListProject(c.UserContext(), c.Params("projectID"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(files)
}

func (h *handlers) getFile(c *fiber.Ctx) error {
	f, err := h.files.Get(c.UserContext(), c.Params("fileID"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(f)
}

func (h *handlers) describe(c *fiber.Ctx) error {
	var req describeRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	f, err := h.files.UpdateDescription(c.UserContext(), c.Params("fileID"), currentUser(c), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(f)
}

func (h *handlers) deleteFile(c *fiber.Ctx) error {
	if err := h.files.Delete(c.UserContext(), c.Params("fileID"), currentUser(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) issueToken(c *fiber.Ctx) error {
	token, expiresAt, err := h.files.IssueDownloadToken(c.UserContext(), c.Params("fileID"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(tokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *handlers) usage(c *fiber.Ctx) error {
	u, err := h.files.Usage(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *handlers) purge(c *fiber.Ctx) error {
	var req purgeRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	res, err := h.files.Purge(c.UserContext(), currentUser(c), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// download is authorized by the capability token alone. Everything that can
// still become an error status happens before SetBodyStream; once fasthttp
// starts writing, a read error closes the connection and the client sees a
// truncated body.
func (h *handlers) download(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return fmt.Errorf("%w: token is required", common.ErrUnauthorized)
	}

	d, err := h.files.OpenDownload(c.UserContext(), token, c.QueryBool("preview", false))
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, d.ContentType)
	c.Set(fiber.HeaderContentDisposition, d.ContentDisposition)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Context().SetBodyStream(d, -1)

	return nil
}
