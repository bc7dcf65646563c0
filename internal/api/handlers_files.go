// handlers_files.go - Uploaded log file handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/storage"
)

const recentFilesLimit = 50

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store storage.Store
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store) FileHandler {
	return &FileHandlerImpl{store: store}
}

// HandleUploadFile accepts a multipart upload in the "file" field
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("missing multipart field \"file\"", err)
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("unreadable upload", err)
	}
	defer src.Close()

	info, err := h.store.Save(fh.Filename, src)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary stores the raw request body under ?name=
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Save(name, c.Request().Body)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles lists uploaded files, newest first
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := recentFilesLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes an uploaded file
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to delete file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		return NewValidationError("name")
	case errors.Is(err, storage.ErrFileTooLarge):
		return &APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "FILE_TOO_LARGE",
			Message: err.Error(),
		}
	default:
		return NewInternalError("failed to save file", err)
	}
}
