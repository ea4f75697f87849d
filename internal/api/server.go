// Package api serves the session over HTTP. Unlike the C boundary, every
// failure here is a distinguishable JSON error.
package api

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/logits"
	"github.com/samcharles93/rwkvffi/internal/metrics"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

type Config struct {
	// ModelsDir, when set, roots every load path; paths escaping it are
	// rejected.
	ModelsDir string
	// Sampler fills fields an infer request leaves out.
	Sampler logits.Config
	// InferRate and InferBurst limit /v1/infer requests. A zero rate
	// disables limiting.
	InferRate  rate.Limit
	InferBurst int
}

type Server struct {
	reg     *runtime.Registry
	cfg     Config
	limiter *rate.Limiter
	src     logits.Source
	log     logger.Logger

	load       func(ctx context.Context, path string, opts runtime.LoadOptions, log logger.Logger) (*runtime.Runtime, error)
	loadPrefab func(ctx context.Context, path string, log logger.Logger) (*runtime.Runtime, error)
}

func NewServer(reg *runtime.Registry, cfg Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.L()
	}
	if cfg.Sampler == (logits.Config{}) {
		cfg.Sampler = logits.DefaultConfig()
	}
	s := &Server{
		reg:        reg,
		cfg:        cfg,
		src:        logits.Global(),
		log:        log.With(logger.ComponentKey, "api"),
		load:       runtime.Load,
		loadPrefab: runtime.LoadPrefab,
	}
	if cfg.InferRate > 0 {
		s.limiter = rate.NewLimiter(cfg.InferRate, max(cfg.InferBurst, 1))
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.Use(s.requestID)

	e.POST("/v1/load", s.handleLoad)
	e.POST("/v1/infer", s.handleInfer, s.rateLimit)
	e.POST("/v1/infer/raw", s.handleInferRaw, s.rateLimit)
	e.GET("/v1/state", s.handleGetState)
	e.PUT("/v1/state", s.handleSetState)
	e.DELETE("/v1/state", s.handleClearState)
	e.GET("/v1/info", s.handleInfo)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// requestID tags the request with an id, echoes it in the response and
// attaches a logger carrying it to the request context.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		req := c.Request()
		id := req.Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		log := s.log.With("request_id", id)
		c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
		return next(c)
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many inference requests", "", "rate_limited")
		}
		return next(c)
	}
}

// resolvePath roots path under ModelsDir when one is configured.
func (s *Server) resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", newInvalidRequest("path is required")
	}
	if s.cfg.ModelsDir == "" {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(s.cfg.ModelsDir, path)
	rel, err := filepath.Rel(s.cfg.ModelsDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", newInvalidRequest("path escapes the models directory")
	}
	return full, nil
}

// withSession runs fn against the current runtime, holding a reference for
// the duration of the call.
func (s *Server) withSession(c *echo.Context, fn func(*runtime.Runtime) error) error {
	h, ok := s.reg.Acquire()
	if !ok {
		return writeRuntimeError(c, ErrNoSession)
	}
	defer h.Release()
	return fn(h.Runtime())
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}
