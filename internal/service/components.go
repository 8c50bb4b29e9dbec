// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/browser"
	"github.com/xkilldash9x/formrelay/internal/observability"
)

// Components holds everything a command needs and centralizes its shutdown.
type Components struct {
	Forms    schemas.FormRepository
	Sessions schemas.SessionStore
	Browser  *browser.Manager
	Service  *FormService

	// closeStore releases the form repository's connection pool, if any.
	closeStore func()
}

// Shutdown releases components in reverse order of creation.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Browser != nil {
		// The application context may already be canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.closeStore != nil {
		c.closeStore()
		logger.Debug("Form store closed.")
	}

	logger.Info("All components shut down successfully.")
}
