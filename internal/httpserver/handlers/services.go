package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/voicectl/internal/health"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

type serviceOverview struct {
	supervisor.StatusSnapshot
	Health health.Result `json:"health"`
}

type overviewResponse struct {
	Services map[string]serviceOverview `json:"services"`
	GPU      any                        `json:"gpu"`
}

// Overview combines status, a fresh health probe and GPU telemetry for every
// catalogued service.
func Overview(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		names := d.Controller.Registry().Names()
		results := make([]serviceOverview, len(names))

		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			i, name := i, name
			g.Go(func() error {
				st, err := d.Controller.Status(gctx, name)
				if err != nil {
					return err
				}
				res, err := d.Health.CheckService(gctx, name)
				if err != nil {
					return err
				}
				results[i] = serviceOverview{StatusSnapshot: st, Health: res}
				return nil
			})
		}

		var gpuInfo any
		g.Go(func() error {
			gpus, err := d.GPU.GPUs(gctx)
			if err != nil {
				gpuInfo = errorResponse{Error: err.Error()}
				return nil
			}
			gpuInfo = map[string]any{"gpus": gpus}
			return nil
		})

		if err := g.Wait(); err != nil {
			writeFailure(w, d.Logger, err)
			return
		}

		out := overviewResponse{
			Services: make(map[string]serviceOverview, len(names)),
			GPU:      gpuInfo,
		}
		for _, res := range results {
			out.Services[res.Service] = res
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func ServiceStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Controller.Status(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeFailure(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

type lifecycleOp func(ctx context.Context, name string) (supervisor.StatusSnapshot, error)

// lifecycle runs op detached from the request context: a client hanging up
// must not turn a graceful stop into a kill.
func lifecycle(d deps.Deps, action string, op lifecycleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		st, err := op(context.WithoutCancel(r.Context()), name)
		if err != nil {
			writeFailure(w, d.Logger, err)
			return
		}

		d.Logger.Info("service "+action,
			logger.String("service", name),
			logger.String("message", st.Message),
			logger.Bool("running", st.Running))

		if d.HealthTrigger != nil {
			select {
			case d.HealthTrigger <- struct{}{}:
			default:
			}
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func StartService(d deps.Deps) http.HandlerFunc {
	return lifecycle(d, "start", d.Controller.Start)
}

func StopService(d deps.Deps) http.HandlerFunc {
	return lifecycle(d, "stop", d.Controller.Stop)
}

func RestartService(d deps.Deps) http.HandlerFunc {
	return lifecycle(d, "restart", d.Controller.Restart)
}

// ServiceHealth probes one service on demand.
func ServiceHealth(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := d.Health.CheckService(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeFailure(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
