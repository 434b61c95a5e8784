package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/Anosmish/pdf2word/internal/config"
	"github.com/Anosmish/pdf2word/internal/services"
	"github.com/Anosmish/pdf2word/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// multipartSlack is added to the upload cap for multipart framing overhead.
const multipartSlack = 1 << 20

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	janitor *services.Janitor
	logger  *log.Logger
}

func NewServer(cfg config.Config, logger *log.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fs := afero.NewOsFs()

	fm, err := storage.NewFileManager(fs, cfg.StorageDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	registry := storage.NewRegistry()
	converter := services.NewSofficeConverter(fs, cfg.ConverterBin, cfg.ConvertTimeout)
	janitor := services.NewJanitor(registry, fm, logger, services.JanitorOptions{
		SweepInterval:  cfg.SweepInterval,
		SweepMaxAge:    cfg.SweepMaxAge,
		ManualSweepAge: cfg.ManualSweepAge,
		DownloadGrace:  cfg.DownloadGrace,
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes + multipartSlack))
	engine.Use(CORS(cfg.AllowedOrigins))

	api := NewAPI(fm, registry, converter, janitor, logger)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, janitor: janitor, logger: logger}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
// The janitor runs for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.janitor.Run(janitorCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server listening", "port", s.cfg.Port, "storageDir", s.cfg.StorageDir)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
