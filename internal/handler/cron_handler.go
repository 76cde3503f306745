// internal/handler/cron_handler.go
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/model"
)

// CampaignRunner is what the trigger endpoint needs from the engine.
type CampaignRunner interface {
	ProcessAllCampaigns(ctx context.Context) (*model.RunSummary, error)
}

// CronHandler is the time-triggered entry point. The external
// scheduler calls it with a bearer token; per-campaign failures still
// produce a 200 with partial results, only fatal run errors are a 500.
type CronHandler struct {
	Engine CampaignRunner
	Secret string
	Logger *slog.Logger
}

func (h *CronHandler) ProcessCampaigns(w http.ResponseWriter, r *http.Request) {
	if h.Secret != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || auth != "Bearer "+h.Secret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
	}

	summary, err := h.Engine.ProcessAllCampaigns(r.Context())
	if err != nil {
		if errors.Is(err, appErrors.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("campaign run failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
