// Package api はHTTPインターフェースを提供する
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server はHTTP APIサーバ
type Server struct {
	engine *gin.Engine
	logger *slog.Logger
	port   int
}

// ServerOption はServerの動作を調整する
type ServerOption func(*Server)

// WithServerLogger はロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer はルーティングを組み立てたServerを作成する
func NewServer(handler *Handler, tokens map[string]string, port int, opts ...ServerOption) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		logger: slog.Default(),
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine.Use(s.requestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api", identityMiddleware(tokens))
	{
		v1.POST("/documents", handler.UploadDocument)
		v1.GET("/documents", handler.ListDocuments)
		v1.GET("/documents/:id", handler.GetDocument)
		v1.DELETE("/documents/:id", handler.DeleteDocument)
		v1.POST("/documents/:id/summary", handler.SummarizeDocument)
		v1.PUT("/documents/:id/favorite", handler.AddFavorite)
		v1.DELETE("/documents/:id/favorite", handler.RemoveFavorite)

		v1.GET("/search", handler.Search)
		v1.POST("/ask", handler.Ask)

		v1.GET("/conversations", handler.ListConversations)
		v1.GET("/conversations/:id", handler.GetConversation)
		v1.DELETE("/conversations/:id", handler.DeleteConversation)

		v1.GET("/favorites", handler.ListFavorites)
		v1.GET("/history", handler.ListSearchHistory)
		v1.DELETE("/history", handler.ClearSearchHistory)
	}

	return s
}

// Engine はテスト用に内部のginエンジンを返す
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run はHTTPサーバを起動し、コンテキストのキャンセルで停止する
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", slog.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// requestLogger はリクエスト単位の構造化ログを出す
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
