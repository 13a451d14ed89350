package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tilly/internal/notify"
)

type CronHandler struct {
	runner *notify.Runner
	logger *slog.Logger
}

func NewCronHandler(runner *notify.Runner, logger *slog.Logger) *CronHandler {
	return &CronHandler{runner: runner, logger: logger}
}

// DeliverNotifications handles GET /api/cron/deliver-notifications. The
// external scheduler calls this on a fixed interval; each call sweeps
// every registered user. Per-user failures are reported in the body, so
// the response is 200 regardless of how the run went.
func (h *CronHandler) DeliverNotifications(w http.ResponseWriter, r *http.Request) {
	results := h.runner.RunAll(r.Context())

	delivered := 0
	for _, res := range results {
		if res.Success && res.NotificationCount > 0 {
			delivered++
		}
	}
	h.logger.Info("notification run complete", "users", len(results), "delivered", delivered)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "notification delivery completed",
		"results": results,
	})
}
