package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/ricirt/pigeonpost/internal/api/middleware"
	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/worker"
)

// Deployer runs the pipeline once.
type Deployer interface {
	Deploy(ctx context.Context, opts worker.DeployOptions) (worker.DeployReport, error)
}

type DeployHandler struct {
	deployer Deployer
	logger   *zap.Logger
}

func NewDeployHandler(deployer Deployer, logger *zap.Logger) *DeployHandler {
	return &DeployHandler{deployer: deployer, logger: logger}
}

// Deploy handles POST /api/v1/deploy?force=&dry_run=
// 409 when another deploy holds the lock.
func (h *DeployHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := boolParam(q.Get("force"))
	dryRun, _ := boolParam(q.Get("dry_run"))

	report, err := h.deployer.Deploy(r.Context(), worker.DeployOptions{Force: force, DryRun: dryRun})
	if err != nil {
		if !errors.Is(err, domain.ErrConcurrentRun) {
			apimw.Logger(r.Context(), h.logger).Error("deploy failed", zap.Error(err))
		}
		if errors.Is(err, domain.ErrRender) {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
