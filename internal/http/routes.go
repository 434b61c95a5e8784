package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/Anosmish/pdf2word/internal/domain"
	"github.com/Anosmish/pdf2word/internal/services"
	"github.com/Anosmish/pdf2word/internal/storage"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type API struct {
	files     *storage.FileManager
	registry  *storage.Registry
	converter services.Converter
	janitor   *services.Janitor
	logger    *log.Logger
}

func NewAPI(fm *storage.FileManager, registry *storage.Registry, converter services.Converter, janitor *services.Janitor, logger *log.Logger) *API {
	return &API{files: fm, registry: registry, converter: converter, janitor: janitor, logger: logger}
}

func registerRoutes(r *gin.Engine, api *API) {
	r.GET("/health", api.handleHealth)
	r.POST("/convert", api.handleConvert)
	r.GET("/download/:id", api.handleDownload)
	r.GET("/download/:id/:filename", api.handleDownload)
	r.POST("/cleanup", api.handleCleanup)

	r.NoRoute(func(c *gin.Context) {
		respondMessage(c, http.StatusNotFound, "Endpoint not found")
	})
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"files_tracked": a.registry.Size(),
	})
}

func (a *API) handleConvert(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondMessage(c, http.StatusRequestEntityTooLarge, "File size exceeds upload limit")
			return
		}
		respondMessage(c, http.StatusBadRequest, "No file provided")
		return
	}

	if strings.TrimSpace(fileHeader.Filename) == "" {
		respondMessage(c, http.StatusBadRequest, "No file selected")
		return
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		respondMessage(c, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		a.logger.Error("open upload", "error", err)
		respondMessage(c, http.StatusInternalServerError, "Unable to read uploaded file")
		return
	}
	defer upload.Close()

	id := a.files.NewID()
	original := storage.SanitizeName(fileHeader.Filename)
	sourcePath := a.files.SourcePath(id, original)
	derivedPath := a.files.DerivedPath(id, original)

	_, detected, err := a.files.SaveUpload(upload, sourcePath)
	if err != nil {
		if errors.Is(err, domain.ErrUploadTooLarge) {
			respondMessage(c, http.StatusRequestEntityTooLarge, "File size exceeds upload limit")
			return
		}
		a.logger.Error("save upload", "id", id, "error", err)
		respondMessage(c, http.StatusInternalServerError, "Unable to save uploaded file")
		return
	}
	a.logger.Info("upload saved", "id", id, "path", sourcePath, "size", fileHeader.Size)

	// The converter decides whether the bytes are convertible; the sniff
	// result is telemetry only.
	if detected != "application/pdf" {
		a.logger.Warn("upload content does not sniff as PDF", "id", id, "detected", detected)
	}

	if err := a.converter.Convert(c.Request.Context(), sourcePath, derivedPath); err != nil {
		// Partial-failure policy: nothing stays on disk after a failed
		// conversion.
		a.discardFiles(id, sourcePath, derivedPath)
		a.logger.Error("conversion failed", "id", id, "error", err)

		if errors.Is(err, domain.ErrConversionIncomplete) {
			respondMessage(c, http.StatusInternalServerError, "Conversion failed - no output file created")
			return
		}
		respondMessage(c, http.StatusInternalServerError, "Failed to convert PDF file. The file might be corrupted or protected.")
		return
	}

	size, err := a.files.FileSize(derivedPath)
	if err != nil {
		a.discardFiles(id, sourcePath, derivedPath)
		a.logger.Error("stat converted file", "id", id, "error", err)
		respondMessage(c, http.StatusInternalServerError, "Conversion failed - no output file created")
		return
	}

	artifact := domain.Artifact{
		ID:          id,
		SourcePath:  sourcePath,
		DerivedPath: derivedPath,
		Filename:    filepath.Base(derivedPath),
		Original:    original,
		Size:        size,
	}

	if err := a.registry.Register(artifact); err != nil {
		a.discardFiles(id, sourcePath, derivedPath)
		a.logger.Error("register artifact", "id", id, "error", err)
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.logger.Info("conversion successful", "id", id, "size", size)

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "File converted successfully",
		"file_id":           id,
		"filename":          artifact.Filename,
		"original_filename": original,
		"file_size":         size,
	})
}

func (a *API) handleDownload(c *gin.Context) {
	id := c.Param("id")
	if err := a.files.ValidateID(id); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid file id")
		return
	}

	filename := c.Param("filename")
	if filename != "" {
		if err := a.files.ValidateDownloadName(id, filename); err != nil {
			if strings.HasPrefix(filename, id+"_") {
				respondMessage(c, http.StatusBadRequest, "Invalid file name")
			} else {
				respondMessage(c, http.StatusForbidden, "Invalid file access")
			}
			return
		}
	}

	artifact, err := a.registry.Get(id)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "File not found")
		return
	}

	if filename != "" && filename != artifact.Filename {
		respondMessage(c, http.StatusForbidden, "Invalid file access")
		return
	}

	if !a.files.Exists(artifact.DerivedPath) {
		respondMessage(c, http.StatusNotFound, "File not found")
		return
	}

	first, err := a.registry.MarkDownloaded(id)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "File not found")
		return
	}
	if first {
		a.janitor.ScheduleRemoval(id)
	}

	downloadName := strings.TrimSuffix(artifact.Original, filepath.Ext(artifact.Original)) + ".docx"

	c.Header("Content-Type", docxMIME)
	c.FileAttachment(artifact.DerivedPath, downloadName)
}

func (a *API) handleCleanup(c *gin.Context) {
	removed := a.janitor.SweepNow()
	c.JSON(http.StatusOK, gin.H{
		"message":         fmt.Sprintf("Cleaned up %d files", removed),
		"files_remaining": a.registry.Size(),
	})
}

// discardFiles removes whatever a failed request left on disk. Errors are
// logged and swallowed so cleanup never masks the original failure.
func (a *API) discardFiles(id string, paths ...string) {
	for _, path := range paths {
		if err := a.files.Remove(path); err != nil {
			a.logger.Error("discard file", "id", id, "path", path, "error", err)
		}
	}
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
