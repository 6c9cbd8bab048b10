package api

import (
	"errors"
	"io"
	"strings"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/media"
	"github.com/fathima-sithara/mailbox-service/internal/presence"
	"github.com/fathima-sithara/mailbox-service/internal/service"
	"github.com/fathima-sithara/mailbox-service/internal/storage"
	"github.com/fathima-sithara/mailbox-service/internal/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handlers struct {
	svc      *service.MessageService
	registry *presence.Registry
	mirror   PresenceReader
	files    storage.FileStore
	log      *zap.SugaredLogger
}

func NewHandlers(svc *service.MessageService, reg *presence.Registry, mirror PresenceReader, files storage.FileStore, log *zap.SugaredLogger) *Handlers {
	return &Handlers{svc: svc, registry: reg, mirror: mirror, files: files, log: log}
}

func currentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

// fail maps the error taxonomy onto HTTP. Store and unexpected errors are
// logged and hidden behind a generic message.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return utils.JSONError(c, fiber.StatusNotFound, err.Error())
	default:
		h.log.Errorw("request failed", "path", c.Path(), "err", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "internal error")
	}
}

// POST /v1/messages/send/:id  {"message": "..."}
func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := bind(c, &req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}
	m, err := h.svc.SendMessage(c.UserContext(), currentUser(c), c.Params("id"), req.Message)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "success": true, "data": m})
}

// POST /v1/messages/upload/:id (multipart/form-data, field "images")
func (h *Handlers) uploadImages(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "multipart form required")
	}
	headers := form.File["images"]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > media.MaxUploadBytes {
			return utils.JSONError(c, fiber.StatusBadRequest, fh.Filename+": file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return utils.JSONError(c, fiber.StatusBadRequest, "cannot open "+fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return utils.JSONError(c, fiber.StatusBadRequest, "cannot read "+fh.Filename)
		}
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	m, err := h.svc.UploadImages(c.UserContext(), currentUser(c), c.Params("id"), uploads)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "success": true, "data": m})
}

// GET /v1/messages/:id marks the conversation read.
func (h *Handlers) getMessages(c *fiber.Ctx) error {
	msgs, err := h.svc.GetMessages(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

// DELETE /v1/messages/:msgId removes msgId and everything older from the caller's view.
func (h *Handlers) deleteMessages(c *fiber.Ctx) error {
	if err := h.svc.DeleteMessages(c.UserContext(), currentUser(c), c.Params("msgId")); err != nil {
		return h.fail(c, err)
	}
	return utils.JSONDone(c)
}

func (h *Handlers) conversations(c *fiber.Ctx) error {
	list, err := h.svc.Conversations(c.UserContext(), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, list)
}

// POST /v1/block/:id severs the conversation immediately. The block itself is
// recorded by the relationship service.
func (h *Handlers) block(c *fiber.Ctx) error {
	if err := h.svc.OnBlock(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return utils.JSONDone(c)
}

func (h *Handlers) registerToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterToken(c.UserContext(), currentUser(c), req.Token, req.Device); err != nil {
		return h.fail(c, err)
	}
	return utils.JSONDone(c)
}

func (h *Handlers) deleteToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.svc.DeleteToken(c.UserContext(), currentUser(c), req.Token); err != nil {
		return h.fail(c, err)
	}
	return utils.JSONDone(c)
}

func (h *Handlers) presence(c *fiber.Ctx) error {
	user := c.Params("id")
	if h.registry != nil && h.registry.Online(user) {
		return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": user, "status": "online"})
	}
	if h.mirror != nil {
		p, err := h.mirror.GetPresence(c.UserContext(), user)
		if err != nil {
			h.log.Warnw("presence mirror read", "user", user, "err", err)
		} else {
			return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": user, "status": p.Status, "last_seen": p.LastSeen})
		}
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": user, "status": "offline"})
}

// GET /v1/files/<ref> redirects to a fetchable URL for a stored image.
func (h *Handlers) fileURL(c *fiber.Ctx) error {
	ref := strings.TrimPrefix(c.Params("+"), "/")
	if ref == "" || strings.Contains(ref, "..") {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid file reference")
	}
	url, err := h.files.URL(c.UserContext(), ref)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(url, fiber.StatusFound)
}
