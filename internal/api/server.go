// Package api exposes search, diagnosis and dataset administration over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/dataset"
	"github.com/hunterwarburton/medsage/internal/diagnose"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/search"
)

const maxBodyBytes = 25 << 20

// Searcher runs the retrieval cascade.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
}

// Diagnoser runs a diagnostic case.
type Diagnoser interface {
	Diagnose(ctx context.Context, req diagnose.Request) (*diagnose.Response, error)
}

// Datasets exposes the index builder.
type Datasets interface {
	Loaded() bool
	Stats() dataset.Stats
	Reload(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	searcher  Searcher
	diagnoser Diagnoser
	datasets  Datasets
}

// NewServer creates a Server.
func NewServer(searcher Searcher, diagnoser Diagnoser, datasets Datasets) *Server {
	return &Server{searcher: searcher, diagnoser: diagnoser, datasets: datasets}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		requestLogger(),
		gin.Recovery(),
		limitBodySize(maxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/healthz", s.health)
	api := router.Group("/api")
	api.GET("/search", s.search)
	api.POST("/diagnose", s.diagnose)
	api.GET("/datasets/stats", s.stats)
	api.POST("/datasets/reload", s.reload)
	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "datasets_loaded": s.datasets.Loaded()})
}

func (s *Server) search(c *gin.Context) {
	q := search.Query{
		Text:  c.Query("q"),
		TopK:  cast.ToInt(c.Query("top_k")),
		Page:  cast.ToInt(c.Query("page")),
		Limit: cast.ToInt(c.Query("limit")),
	}
	if types := c.Query("types"); types != "" {
		q.Types = strings.Split(types, ",")
	}

	page, err := s.searcher.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type diagnoseBody struct {
	Symptoms    string `json:"symptoms"`
	Modality    string `json:"modality"`
	UserID      string `json:"userId"`
	ImageBase64 string `json:"imageBase64"`
}

func (s *Server) diagnose(c *gin.Context) {
	req, err := bindDiagnose(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.diagnoser.Diagnose(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// bindDiagnose accepts multipart uploads and JSON bodies with a base64 image.
func bindDiagnose(c *gin.Context) (diagnose.Request, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req := diagnose.Request{
			Symptoms: c.PostForm("symptoms"),
			Modality: core.Modality(c.PostForm("modality")),
			UserID:   c.PostForm("userId"),
		}
		fh, err := c.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		if err != nil {
			return req, err
		}
		f, err := fh.Open()
		if err != nil {
			return req, err
		}
		defer f.Close()
		req.Image, err = io.ReadAll(f)
		return req, err
	}

	var body diagnoseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return diagnose.Request{}, errors.New("invalid payload")
	}
	req := diagnose.Request{
		Symptoms: body.Symptoms,
		Modality: core.Modality(body.Modality),
		UserID:   body.UserID,
	}
	if body.ImageBase64 != "" {
		img, err := decodeImage(body.ImageBase64)
		if err != nil {
			return req, errors.New("imageBase64 is not valid base64")
		}
		req.Image = img
	}
	return req, nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.datasets.Stats())
}

func (s *Server) reload(c *gin.Context) {
	if err := s.datasets.Reload(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.datasets.Stats())
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrEmptyQuery), errors.Is(err, core.ErrUnknownModality):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrTransientNetwork):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
