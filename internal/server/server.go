package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/cbning/internal/config"
	"github.com/agenthands/cbning/internal/core"
	"github.com/agenthands/cbning/internal/core/interpretation"
	"github.com/agenthands/cbning/internal/core/merge"
	"github.com/agenthands/cbning/internal/core/model"
	"github.com/agenthands/cbning/internal/core/translation"
	"github.com/agenthands/cbning/internal/driver"
	apperrors "github.com/agenthands/cbning/internal/errors"
	"github.com/agenthands/cbning/internal/llm"
	"github.com/agenthands/cbning/internal/logger"
	"github.com/agenthands/cbning/internal/metrics"
	"github.com/agenthands/cbning/internal/render"
)

type Server struct {
	Manager *core.Manager
	Merger  *merge.Merger
	Metrics *metrics.Collector

	breaker *llm.BreakerClient
	driver  driver.GraphDriver
	logger  *zap.Logger
}

// New wires a server around an existing manager. It is what tests use.
func New(manager *core.Manager, merger *merge.Merger, collector *metrics.Collector) *Server {
	return &Server{
		Manager: manager,
		Merger:  merger,
		Metrics: collector,
		logger:  logger.Get(),
	}
}

// NewServer builds every component from cfg: LLM client behind a circuit breaker,
// translation and interpretation services, the optional Memgraph store and the
// session manager.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.Get()

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	var breaker *llm.BreakerClient
	var guarded llm.LLMClient
	if client != nil {
		breaker = llm.NewBreakerClient("llm-"+cfg.LLM.Provider, client, cfg.Breaker)
		guarded = breaker
	} else {
		log.Warn("No LLM configured; translation is disabled and interpretation is descriptive only")
	}

	var d driver.GraphDriver
	var store core.Store
	if cfg.Memgraph.Enabled {
		md, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			return nil, err
		}
		if err := md.BuildIndices(ctx); err != nil {
			log.Warn("Failed to build indices", zap.Error(err))
		}
		d = md
		store = driver.NewCBNStore(md)
	}

	collector := metrics.NewCollector("cbning")
	merger := merge.NewMerger(merge.Policy(cfg.Merge.CPDPolicy), cfg.Merge.Tolerance, cfg.Merge.MaxCPDRows)

	deps := core.Deps{
		Translator:       translation.NewTranslator(guarded, cfg.Prompts.Translate),
		Interpreter:      interpretation.NewInterpreter(guarded, cfg.Prompts.Interpret),
		Merger:           merger,
		Metrics:          collector,
		TranslateTimeout: cfg.Session.TranslateTimeout(),
		InterpretTimeout: cfg.Session.InterpretTimeout(),
		StoreTimeout:     cfg.Session.StoreTimeout(),
		Store:            store,
	}

	s := New(core.NewManager(deps, cfg.Session.MaxSessions), merger, collector)
	s.breaker = breaker
	s.driver = d
	return s, nil
}

// Close releases the store connection, if any.
func (s *Server) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(ginLogger(s.logger))
	r.Use(gin.Recovery())
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	r.GET("/health", s.Health)

	sessions := r.Group("/sessions")
	{
		sessions.POST("", s.CreateSession)
		sessions.GET("", s.ListSessions)
		sessions.GET("/:id", s.GetSession)
		sessions.DELETE("/:id", s.DeleteSession)
		sessions.POST("/:id/turns", s.SubmitTurn)
		sessions.GET("/:id/transcript", s.Transcript)
		sessions.GET("/:id/graph.dot", s.GraphDOT)
		sessions.POST("/:id/resume", s.ResumeSession)
	}

	r.POST("/validate", s.Validate)
	r.POST("/merge", s.Merge)

	return r
}

func (s *Server) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "sessions": s.Manager.Len()}
	if s.breaker != nil {
		body["llm"] = s.breaker.State()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) CreateSession(c *gin.Context) {
	sess, err := s.Manager.Create(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":    sess.Summary(),
		"transcript": sess.Transcript(),
	})
}

func (s *Server) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Manager.List()})
}

func (s *Server) GetSession(c *gin.Context) {
	sess, err := s.Manager.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Summary())
}

func (s *Server) DeleteSession(c *gin.Context) {
	if err := s.Manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type TurnRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) SubmitTurn(c *gin.Context) {
	sess, err := s.Manager.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	turn := sess.Submit(c.Request.Context(), req.Text)
	c.JSON(http.StatusOK, gin.H{
		"turn": turn,
		"cbn":  sess.State(),
	})
}

func (s *Server) Transcript(c *gin.Context) {
	sess, err := s.Manager.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": sess.Transcript()})
}

func (s *Server) GraphDOT(c *gin.Context) {
	sess, err := s.Manager.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(render.DOT(sess.State())))
}

func (s *Server) ResumeSession(c *gin.Context) {
	sess, err := s.Manager.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":    sess.Summary(),
		"transcript": sess.Transcript(),
	})
}

type ValidateRequest struct {
	CBN model.CBN `json:"cbn"`
}

func (s *Server) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := s.Merger.Validator.Validate(req.CBN)
	c.JSON(http.StatusOK, gin.H{
		"valid":      res.Valid(),
		"violations": res.Violations,
	})
}

type MergeRequest struct {
	CBN  model.CBN          `json:"cbn"`
	Diff model.ProposedDiff `json:"diff"`
}

func (s *Server) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Merger.Apply(req.CBN, req.Diff))
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrSessionLimit):
		status = http.StatusTooManyRequests
	case errors.Is(err, driver.ErrSnapshotNotFound):
		status = http.StatusNotFound
	case apperrors.IsErrorType(err, apperrors.ErrorTypeSession):
		status = http.StatusNotFound
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		status = http.StatusUnprocessableEntity
	case apperrors.IsErrorType(err, apperrors.ErrorTypeStore):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
