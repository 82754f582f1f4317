package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/blockstore"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/generator"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/log"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/response"
)

// Handler handles HTTP requests for the sequence service.
type Handler struct {
	registry *generator.Registry
	metrics  *metrics.Metrics
}

// NewHandler creates a new HTTP handler. m may be nil.
func NewHandler(registry *generator.Registry, m *metrics.Metrics) *Handler {
	return &Handler{
		registry: registry,
		metrics:  m,
	}
}

type GenerateResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type BatchResponse struct {
	Kind string   `json:"kind"`
	IDs  []string `json:"ids"`
}

type BatchRequest struct {
	Count int `form:"count" binding:"required,min=1,max=1000"`
}

type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type ParseResponse struct {
	Valid        bool   `json:"valid"`
	ErrorMessage string `json:"error_message,omitempty"`
	*generator.ParseResult
}

type CurrentResponse struct {
	Kind         string `json:"kind"`
	CurrentValue uint64 `json:"current_value"`
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		ids := api.Group("/ids/:kind")
		{
			ids.GET("", h.Generate)
			ids.GET("/batch", h.GenerateBatch)
			ids.GET("/validate/:id", h.Validate)
			ids.GET("/parse/:id", h.Parse)
		}

		api.GET("/sequences/:kind/current", h.Current)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Generate issues one identifier of the requested kind.
func (h *Handler) Generate(c *gin.Context) {
	kind := c.Param("kind")
	ctx := log.WithKind(c.Request.Context(), kind)

	gen, ok := h.generator(c, kind)
	if !ok {
		return
	}

	id, err := gen.Generate(ctx)
	if err != nil {
		h.fail(c, log.Ctx(ctx), err, "failed to generate id")
		return
	}
	h.issued(kind, 1)

	response.Success(c, GenerateResponse{Kind: kind, ID: id})
}

// GenerateBatch issues count identifiers of the requested kind.
func (h *Handler) GenerateBatch(c *gin.Context) {
	kind := c.Param("kind")
	ctx := log.WithKind(c.Request.Context(), kind)

	gen, ok := h.generator(c, kind)
	if !ok {
		return
	}

	var req BatchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "count must be between 1 and 1000")
		return
	}

	ids, err := gen.GenerateBatch(ctx, req.Count)
	if err != nil {
		h.fail(c, log.Ctx(ctx), err, "failed to generate batch ids")
		return
	}
	h.issued(kind, len(ids))

	response.Success(c, BatchResponse{Kind: kind, IDs: ids})
}

func (h *Handler) Validate(c *gin.Context) {
	gen, ok := h.generator(c, c.Param("kind"))
	if !ok {
		return
	}

	valid, reason := gen.Validate(c.Param("id"))
	response.Success(c, ValidateResponse{Valid: valid, Reason: reason})
}

func (h *Handler) Parse(c *gin.Context) {
	gen, ok := h.generator(c, c.Param("kind"))
	if !ok {
		return
	}

	result, err := gen.Parse(c.Param("id"))
	if err != nil {
		response.Success(c, ParseResponse{Valid: false, ErrorMessage: err.Error()})
		return
	}
	response.Success(c, ParseResponse{Valid: true, ParseResult: result})
}

// Current reports the last identifier issued by a block-backed kind.
func (h *Handler) Current(c *gin.Context) {
	kind := c.Param("kind")

	gen, ok := h.generator(c, kind)
	if !ok {
		return
	}
	block, ok := gen.(interface{ Current() uint64 })
	if !ok {
		response.BadRequest(c, "kind "+kind+" is not block allocated")
		return
	}

	response.Success(c, CurrentResponse{Kind: kind, CurrentValue: block.Current()})
}

func (h *Handler) generator(c *gin.Context, kind string) (generator.Generator, bool) {
	gen, err := h.registry.Get(kind)
	if err != nil {
		response.NotFound(c, err.Error())
		return nil, false
	}
	return gen, true
}

func (h *Handler) issued(kind string, n int) {
	if h.metrics != nil {
		h.metrics.IDsIssued(kind, n)
	}
}

func (h *Handler) fail(c *gin.Context, l zerolog.Logger, err error, msg string) {
	if errors.Is(err, incrementer.ErrLifecycle) {
		l.Warn().Err(err).Msg(msg)
		response.ServiceUnavailable(c, err.Error())
		return
	}

	evt := l.Error().Err(err)
	var storageErr *blockstore.StorageError
	if errors.As(err, &storageErr) {
		evt = evt.Str("op", storageErr.Op).Str("path", storageErr.Path)
	}
	evt.Msg(msg)
	_ = c.Error(err)
	response.InternalError(c, msg)
}
