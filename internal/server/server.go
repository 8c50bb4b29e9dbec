// Package server exposes the conversation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/internal/config"
)

// MessageHandler consumes one chat message. conversation.Handler implements it.
type MessageHandler interface {
	Handle(ctx context.Context, requesterID, text string) error
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	// RequesterID may be omitted when the bearer token names the requester.
	RequesterID string `json:"requester_id"`
	Text        string `json:"text" binding:"required"`
}

// MessageResponse carries the replies queued for the requester.
type MessageResponse struct {
	Replies []string `json:"replies"`
}

const maxBodyBytes = 64 << 10

// Server serves the chat API.
type Server struct {
	cfg     config.ServerConfig
	handler MessageHandler
	mailbox *Mailbox
	logger  *zap.Logger
	engine  *gin.Engine
}

// New builds the router. Replies produced by handler must be delivered to mailbox.
func New(cfg config.ServerConfig, handler MessageHandler, mailbox *Mailbox, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		handler: handler,
		mailbox: mailbox,
		logger:  logger.Named("server"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(s.logger))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(Auth(cfg.JWTSecret, s.logger))
	} else {
		s.logger.Warn("JWT secret not set; the chat API is unauthenticated.")
	}
	v1.Use(NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Limit())
	v1.POST("/messages", s.postMessage)
	v1.GET("/messages/:requester", s.getMessages)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// resolveRequester reconciles the requester named in the request with the token subject.
func resolveRequester(c *gin.Context, claimed string) (string, bool) {
	subject := c.GetString(ctxRequesterKey)
	switch {
	case subject == "":
		return claimed, claimed != ""
	case claimed == "" || claimed == subject:
		return subject, true
	}
	return "", false
}

func (s *Server) postMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	requester, ok := resolveRequester(c, req.RequesterID)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester_id does not match the token"})
		return
	}

	if err := s.handler.Handle(c.Request.Context(), requester, req.Text); err != nil {
		s.logger.Error("Failed to handle message.", zap.String("requester_id", requester), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to handle message"})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Replies: s.mailbox.Drain(requester)})
}

func (s *Server) getMessages(c *gin.Context) {
	requester, ok := resolveRequester(c, c.Param("requester"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester does not match the token"})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Replies: s.mailbox.Drain(requester)})
}

// ListenAndServe serves on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-errCh
	return nil
}
