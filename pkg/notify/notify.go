// Package notify carries user-facing notices out of the session layer.
package notify

import (
	"log/slog"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/logger"
)

// slogNotifier writes notices to the application log. Delivery surfaces that
// push notices to clients can wrap or replace it.
type slogNotifier struct {
	log *slog.Logger
}

// NewSlogNotifier returns a Notifier backed by the shared slog logger.
func NewSlogNotifier() domain.Notifier {
	return &slogNotifier{log: logger.Log}
}

func (n *slogNotifier) Success(message string) {
	n.log.Info("notice", "level", "success", "message", message)
}

func (n *slogNotifier) Info(message string) {
	n.log.Info("notice", "level", "info", "message", message)
}

func (n *slogNotifier) Warn(message string) {
	n.log.Warn("notice", "level", "warning", "message", message)
}

func (n *slogNotifier) Error(message string) {
	n.log.Error("notice", "level", "error", "message", message)
}
