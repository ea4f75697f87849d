package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

// maxLayerCount bounds the per-layer load parameters accepted over HTTP.
const maxLayerCount = 1 << 16

func (s *Server) handleLoad(c *echo.Context) error {
	req, err := decodeJSON[LoadRequest](c.Request().Body)
	if err != nil {
		return writeRuntimeError(c, err)
	}
	if req.Int8 < 0 || req.NF4 < 0 || req.SF4 < 0 || req.Rescale < 0 {
		return writeBadRequest(c, "quantization and rescale values must not be negative", "")
	}
	if max(req.Int8, req.NF4, req.SF4, req.Rescale) > maxLayerCount {
		return writeBadRequest(c, fmt.Sprintf("quantization and rescale values must not exceed %d", maxLayerCount), "")
	}
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return writeBadRequest(c, err.Error(), "path")
	}

	ctx := c.Request().Context()
	log := logger.FromContext(ctx)
	var rt *runtime.Runtime
	if req.Prefab {
		rt, err = s.loadPrefab(ctx, path, log)
	} else {
		rt, err = s.load(ctx, path, runtime.LoadOptions{
			Int8:     req.Int8,
			NF4:      req.NF4,
			SF4:      req.SF4,
			Rescale:  req.Rescale,
			Extended: req.Extended,
		}, log)
	}
	if err != nil {
		log.Error("load failed", "path", path, "err", err)
		return writeError(c, http.StatusUnprocessableEntity, "load_error", err.Error(), "path", "load_failed")
	}
	s.reg.Install(rt)
	return s.handleInfo(c)
}

func (s *Server) handleInfer(c *echo.Context) error {
	req, err := decodeJSON[InferRequest](c.Request().Body)
	if err != nil {
		return writeRuntimeError(c, err)
	}
	cfg := s.cfg.Sampler
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if !cfg.Greedy() && cfg.Temperature <= 0 {
		return writeBadRequest(c, "temperature must be positive", "temperature")
	}

	return s.withSession(c, func(rt *runtime.Runtime) error {
		tok, err := rt.Sample(c.Request().Context(), req.Tokens, cfg, s.src)
		if err != nil {
			return writeRuntimeError(c, err)
		}
		return c.JSON(http.StatusOK, InferResponse{Token: tok, Session: rt.ID()})
	})
}

func (s *Server) handleInferRaw(c *echo.Context) error {
	req, err := decodeJSON[RawInferRequest](c.Request().Body)
	if err != nil {
		return writeRuntimeError(c, err)
	}
	var mode engine.InferOption
	switch req.Mode {
	case "", "last":
		mode = engine.InferLast
	case "full":
		mode = engine.InferFull
	default:
		return writeBadRequest(c, "mode must be \"last\" or \"full\"", "mode")
	}

	return s.withSession(c, func(rt *runtime.Runtime) error {
		out, err := rt.Infer(c.Request().Context(), req.Tokens, mode)
		if err != nil {
			return writeRuntimeError(c, err)
		}
		vocab := rt.Info().NumVocab
		return c.JSON(http.StatusOK, RawInferResponse{
			Logits:  out,
			Rows:    len(out) / vocab,
			Vocab:   vocab,
			Session: rt.ID(),
		})
	})
}

func (s *Server) handleGetState(c *echo.Context) error {
	return s.withSession(c, func(rt *runtime.Runtime) error {
		state, err := rt.State(c.Request().Context())
		if err != nil {
			return writeRuntimeError(c, err)
		}
		return c.JSON(http.StatusOK, StateBody{State: state})
	})
}

func (s *Server) handleSetState(c *echo.Context) error {
	req, err := decodeJSON[StateBody](c.Request().Body)
	if err != nil {
		return writeRuntimeError(c, err)
	}
	return s.withSession(c, func(rt *runtime.Runtime) error {
		if err := rt.SetState(c.Request().Context(), req.State); err != nil {
			return writeRuntimeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) handleClearState(c *echo.Context) error {
	return s.withSession(c, func(rt *runtime.Runtime) error {
		if err := rt.ClearState(c.Request().Context()); err != nil {
			return writeRuntimeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) handleInfo(c *echo.Context) error {
	return s.withSession(c, func(rt *runtime.Runtime) error {
		info := rt.Info()
		return c.JSON(http.StatusOK, InfoResponse{
			Version:    int(info.Version),
			NumLayer:   info.NumLayer,
			NumHidden:  info.NumHidden,
			NumEmb:     info.NumEmb,
			NumVocab:   info.NumVocab,
			NumHead:    info.NumHead,
			StateLen:   rt.StateLen(),
			Session:    rt.ID(),
			Generation: s.reg.Generation(),
		})
	})
}
