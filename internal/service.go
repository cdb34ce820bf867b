package internal

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/anantadwi13/coredns-record-manager/internal/external"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type service struct {
	config     domain.Config
	log        *zap.Logger
	e          *echo.Echo
	repository domain.RecordRepository
	store      *RecordStore
	metrics    *Metrics
	dnsServer  domain.DNSServer
	watcher    *TemplateWatcher
	shutdownWg sync.WaitGroup
}

func NewService(config domain.Config, log *zap.Logger) *service {
	return &service{config: config, log: log}
}

// Start wires the dependencies, generates the initial configuration and serves
// the API until SIGINT or SIGTERM.
func (s *service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalOS := make(chan os.Signal, 1)
	signal.Notify(signalOS, syscall.SIGINT, syscall.SIGTERM)

	err := s.registerDependencies(ctx)
	if err != nil {
		return err
	}

	s.registerRoute()

	s.loadDNSService(ctx)

	s.loadTemplateWatcher(ctx)

	serverErr := s.loadAPIServer()

	select {
	case <-signalOS:
		s.log.Info("service is stopping")
	case err = <-serverErr:
		s.log.Error("api server stopped", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.gracefulShutdown(shutdownCtx)
	s.shutdownWg.Wait()
	s.log.Info("service is stopped")
	return err
}

// Rebuild regenerates the configuration once and reloads the dns server.
func (s *service) Rebuild() error {
	ctx := context.Background()
	err := s.registerDependencies(ctx)
	if err != nil {
		return err
	}
	defer s.repository.Close()
	return s.dnsServer.UpdateAndReload(ctx)
}

func (s *service) registerDependencies(ctx context.Context) error {
	var err error
	s.e = echo.New()
	s.e.HideBanner = true
	s.e.HidePort = true

	s.repository, err = external.NewRecordRepository(ctx, s.config)
	if err != nil {
		return errors.Wrap(err, "open record store")
	}
	s.store = NewRecordStore(s.repository)
	s.metrics = NewMetrics()

	reloader := NewReloadCoordinator(s.config, NewOSProcessController(s.log), s.metrics, s.log)
	s.dnsServer = NewCorednsServer(s.config, s.store, reloader, s.metrics, s.log)
	return nil
}

func (s *service) registerRoute() {
	s.e.GET("/api/records", s.handleListRecords)
	s.e.POST("/api/records", s.handleCreateRecord)
	s.e.DELETE("/api/records/:fqdn", s.handleDeleteRecord)

	s.e.GET("/healthz", s.handleHealth)
	s.e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// loadDNSService generates the configuration at startup. A failure is logged
// only: the API must stay available so the operator can fix the records.
func (s *service) loadDNSService(ctx context.Context) {
	err := s.dnsServer.UpdateAndReload(ctx)
	if err != nil {
		s.log.Error("initial configuration synthesis failed", zap.Error(err))
	}
}

// loadTemplateWatcher starts watching the template. Like the initial synthesis
// a failure is logged only; template edits then apply on the next mutation.
func (s *service) loadTemplateWatcher(ctx context.Context) {
	if !s.config.WatchTemplate() {
		return
	}
	watcher := NewTemplateWatcher(s.config.TemplatePath(), s.dnsServer, 0, s.log)
	err := watcher.Start(ctx)
	if err != nil {
		s.log.Warn("template watcher disabled", zap.Error(err))
		return
	}
	s.watcher = watcher
}

func (s *service) loadAPIServer() <-chan error {
	serverErr := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", zap.String("address", s.config.Listen()))
		err := s.e.Start(s.config.Listen())
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	return serverErr
}

func (s *service) gracefulShutdown(ctx context.Context) {
	s.shutdownWg.Add(3)
	go func() {
		defer s.shutdownWg.Done()
		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.log.Warn("stop template watcher", zap.Error(err))
			}
		}
		if err := s.dnsServer.Shutdown(ctx); err != nil {
			s.log.Warn("wait for synthesis", zap.Error(err))
		}
	}()
	go func() {
		defer s.shutdownWg.Done()
		if err := s.e.Shutdown(ctx); err != nil {
			s.log.Warn("stop api server", zap.Error(err))
		}
	}()
	go func() {
		defer s.shutdownWg.Done()
		if err := s.repository.Close(); err != nil {
			s.log.Warn("close record store", zap.Error(err))
		}
	}()
}

type RecordRequest struct {
	FQDN string `json:"fqdn" form:"fqdn"`
	IP   string `json:"ip" form:"ip"`
}

func (s *service) handleListRecords(c echo.Context) error {
	records, err := s.store.List(c.Request().Context())
	if err != nil {
		return s.responseErr(c, err)
	}
	if records == nil {
		records = []*domain.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *service) handleCreateRecord(c echo.Context) error {
	ctx := c.Request().Context()

	req := &RecordRequest{}
	if err := c.Bind(req); err != nil {
		return responseClientErr(c, errors.New("malformed request body"))
	}
	if req.FQDN == "" {
		return responseClientErr(c, errors.New("fqdn is required"))
	}
	if req.IP == "" {
		return responseClientErr(c, errors.New("ip address is required"))
	}

	record, err := s.store.Add(ctx, req.FQDN, req.IP)
	s.metrics.ObserveMutation("add", err)
	if err != nil {
		return s.responseErr(c, err)
	}

	err = s.dnsServer.UpdateAndReload(ctx)
	if err != nil {
		return s.responseErr(c, err)
	}

	return c.JSON(http.StatusCreated, record)
}

func (s *service) handleDeleteRecord(c echo.Context) error {
	ctx := c.Request().Context()

	fqdn, err := url.PathUnescape(c.Param("fqdn"))
	if err != nil {
		return responseClientErr(c, err)
	}

	err = s.store.Delete(ctx, fqdn)
	s.metrics.ObserveMutation("delete", err)
	if err != nil {
		return s.responseErr(c, err)
	}

	err = s.dnsServer.UpdateAndReload(ctx)
	if err != nil {
		return s.responseErr(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *service) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, MessageResponse{"ok"})
}

// responseErr maps the domain error taxonomy to http statuses.
func (s *service) responseErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return responseClientErr(c, err)
	case errors.Is(err, domain.ErrDuplicateKey):
		return c.JSON(http.StatusConflict, MessageResponse{err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return responseNotFound(c, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return responseServerErr(c, err)
	}
}

func responseNotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, MessageResponse{message})
}

func responseServerErr(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, MessageResponse{"internal error: " + err.Error()})
}

func responseClientErr(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, MessageResponse{err.Error()})
}

type MessageResponse struct {
	Message string `json:"message"`
}
