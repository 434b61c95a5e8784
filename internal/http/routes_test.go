package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Anosmish/pdf2word/internal/config"
	"github.com/Anosmish/pdf2word/internal/domain"
	"github.com/Anosmish/pdf2word/internal/services"
	"github.com/Anosmish/pdf2word/internal/storage"
)

// stubConverter stands in for the external engine so route tests can force
// each outcome without LibreOffice installed.
type stubConverter struct {
	fs      afero.Fs
	mode    string // "ok", "fail", "incomplete"
	payload []byte
}

func (s *stubConverter) Convert(_ context.Context, _, derivedPath string) error {
	switch s.mode {
	case "fail":
		return fmt.Errorf("%w: engine rejected input", domain.ErrConversionFailed)
	case "incomplete":
		return domain.ErrConversionIncomplete
	default:
		return afero.WriteFile(s.fs, derivedPath, s.payload, 0o644)
	}
}

var docxPayload = []byte("PK\x03\x04 converted document payload")

type testEnv struct {
	engine   *gin.Engine
	registry *storage.Registry
	files    *storage.FileManager
	dir      string
}

func setupTestServer(t *testing.T, mode string, mutate ...func(*config.Config)) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.Config{
		Port:           "8080",
		StorageDir:     dir,
		MaxUploadBytes: 1 * 1024 * 1024,
		SweepInterval:  time.Minute,
		SweepMaxAge:    time.Hour,
		ManualSweepAge: 30 * time.Minute,
		DownloadGrace:  30 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	// Downloads stream straight off disk, so these tests run on the real
	// filesystem under t.TempDir.
	fs := afero.NewOsFs()

	fm, err := storage.NewFileManager(fs, cfg.StorageDir, cfg.MaxUploadBytes)
	require.NoError(t, err)

	registry := storage.NewRegistry()
	logger := log.New(io.Discard)
	converter := &stubConverter{fs: fs, mode: mode, payload: docxPayload}
	janitor := services.NewJanitor(registry, fm, logger, services.JanitorOptions{
		SweepInterval:  cfg.SweepInterval,
		SweepMaxAge:    cfg.SweepMaxAge,
		ManualSweepAge: cfg.ManualSweepAge,
		DownloadGrace:  cfg.DownloadGrace,
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes + multipartSlack))
	api := NewAPI(fm, registry, converter, janitor, logger)
	registerRoutes(engine, api)

	return testEnv{engine: engine, registry: registry, files: fm, dir: dir}
}

func fixturePDF(t *testing.T) []byte {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "integration fixture")

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func postConvert(t *testing.T, env testEnv, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func storageEntries(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestHealthHandler(t *testing.T) {
	env := setupTestServer(t, "ok")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, float64(0), body["files_tracked"])

	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	require.NoError(t, err)
}

func TestConvertMissingFile(t *testing.T) {
	env := setupTestServer(t, "ok")

	req := httptest.NewRequest(http.MethodPost, "/convert", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No file provided", decodeJSON(t, rec)["error"])
}

func TestConvertRejectsNonPDFExtension(t *testing.T) {
	env := setupTestServer(t, "ok")

	rec := postConvert(t, env, "notes.txt", fixturePDF(t))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Only PDF files are allowed", decodeJSON(t, rec)["error"])
}

func TestConvertFakePDFContentFailsInEngine(t *testing.T) {
	// A .pdf-named upload with arbitrary bytes must reach the conversion
	// engine; when the engine rejects it the response is a 500 with the
	// conversion-failure message, and nothing is left behind.
	env := setupTestServer(t, "fail")

	rec := postConvert(t, env, "fake.pdf", []byte("ten bytes!"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to convert PDF file. The file might be corrupted or protected.", decodeJSON(t, rec)["error"])

	require.Equal(t, 0, env.registry.Size())
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestConvertRejectsOversizedUpload(t *testing.T) {
	env := setupTestServer(t, "ok", func(cfg *config.Config) {
		cfg.MaxUploadBytes = 512
	})

	padded := append(fixturePDF(t), bytes.Repeat([]byte("x"), 4096)...)
	rec := postConvert(t, env, "big.pdf", padded)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, 0, env.registry.Size())
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestConvertBodyOverMiddlewareCap(t *testing.T) {
	env := setupTestServer(t, "ok", func(cfg *config.Config) {
		cfg.MaxUploadBytes = 512
	})

	// Larger than cap plus the multipart slack, so http.MaxBytesReader
	// trips while the form is being parsed.
	padded := append(fixturePDF(t), bytes.Repeat([]byte("x"), int(multipartSlack)+1024)...)
	rec := postConvert(t, env, "huge.pdf", padded)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "File size exceeds upload limit", decodeJSON(t, rec)["error"])
	require.Equal(t, 0, env.registry.Size())
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestConvertEngineFailureLeavesNothingBehind(t *testing.T) {
	env := setupTestServer(t, "fail")

	rec := postConvert(t, env, "doc.pdf", fixturePDF(t))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, decodeJSON(t, rec)["error"])

	require.Equal(t, 0, env.registry.Size())
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestConvertIncompleteOutput(t *testing.T) {
	env := setupTestServer(t, "incomplete")

	rec := postConvert(t, env, "doc.pdf", fixturePDF(t))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Conversion failed - no output file created", decodeJSON(t, rec)["error"])

	require.Equal(t, 0, env.registry.Size())
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestConvertAndDownloadLifecycle(t *testing.T) {
	env := setupTestServer(t, "ok")

	rec := postConvert(t, env, "My Report.pdf", fixturePDF(t))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	require.Equal(t, true, body["success"])
	fileID := body["file_id"].(string)
	filename := body["filename"].(string)
	require.Equal(t, "My_Report.pdf", body["original_filename"])
	require.Equal(t, float64(len(docxPayload)), body["file_size"])
	require.Equal(t, 1, env.registry.Size())

	req := httptest.NewRequest(http.MethodGet, "/download/"+fileID+"/"+filename, nil)
	dlRec := httptest.NewRecorder()
	env.engine.ServeHTTP(dlRec, req)

	require.Equal(t, http.StatusOK, dlRec.Code)
	require.Contains(t, dlRec.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, dlRec.Header().Get("Content-Disposition"), "My_Report.docx")
	require.Equal(t, docxPayload, dlRec.Body.Bytes())

	// First download arms the deferred deletion; after the grace delay the
	// entry and both files are gone.
	require.Eventually(t, func() bool {
		_, err := env.registry.Get(fileID)
		return err != nil && storageEntries(t, env.dir) == 0
	}, 2*time.Second, 20*time.Millisecond)

	postDelete := httptest.NewRequest(http.MethodGet, "/download/"+fileID+"/"+filename, nil)
	goneRec := httptest.NewRecorder()
	env.engine.ServeHTTP(goneRec, postDelete)
	require.Equal(t, http.StatusNotFound, goneRec.Code)
}

func TestDownloadMalformedID(t *testing.T) {
	env := setupTestServer(t, "ok")

	req := httptest.NewRequest(http.MethodGet, "/download/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadUnknownID(t *testing.T) {
	env := setupTestServer(t, "ok")

	req := httptest.NewRequest(http.MethodGet, "/download/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "File not found", decodeJSON(t, rec)["error"])
}

func TestDownloadFilenameMismatch(t *testing.T) {
	env := setupTestServer(t, "ok", func(cfg *config.Config) {
		cfg.DownloadGrace = time.Hour
	})

	rec := postConvert(t, env, "doc.pdf", fixturePDF(t))
	require.Equal(t, http.StatusOK, rec.Code)
	fileID := decodeJSON(t, rec)["file_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/download/"+fileID+"/"+uuid.NewString()+"_doc.docx", nil)
	mismatchRec := httptest.NewRecorder()
	env.engine.ServeHTTP(mismatchRec, req)

	require.Equal(t, http.StatusForbidden, mismatchRec.Code)
	require.Equal(t, "Invalid file access", decodeJSON(t, mismatchRec)["error"])
}

func TestCleanupEndpoint(t *testing.T) {
	env := setupTestServer(t, "ok", func(cfg *config.Config) {
		// Keep the deferred deletion out of the way so the manual sweep is
		// what removes the downloaded artifact.
		cfg.DownloadGrace = time.Hour
	})

	rec := postConvert(t, env, "doc.pdf", fixturePDF(t))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	fileID := body["file_id"].(string)
	filename := body["filename"].(string)

	dlReq := httptest.NewRequest(http.MethodGet, "/download/"+fileID+"/"+filename, nil)
	dlRec := httptest.NewRecorder()
	env.engine.ServeHTTP(dlRec, dlReq)
	require.Equal(t, http.StatusOK, dlRec.Code)

	cleanupReq := httptest.NewRequest(http.MethodPost, "/cleanup", nil)
	cleanupRec := httptest.NewRecorder()
	env.engine.ServeHTTP(cleanupRec, cleanupReq)

	require.Equal(t, http.StatusOK, cleanupRec.Code)
	cleanupBody := decodeJSON(t, cleanupRec)
	require.Equal(t, "Cleaned up 2 files", cleanupBody["message"])
	require.Equal(t, float64(0), cleanupBody["files_remaining"])
	require.Equal(t, 0, storageEntries(t, env.dir))
}

func TestUnknownEndpoint(t *testing.T) {
	env := setupTestServer(t, "ok")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Endpoint not found", decodeJSON(t, rec)["error"])
}
