package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/simstream/internal/api/models"
	"github.com/smazurov/simstream/internal/simctl"
)

func (s *Server) registerSimulatorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-simulators",
		Method:      http.MethodGet,
		Path:        "/api/simulators",
		Summary:     "List simulators",
		Description: "List available simulators, booted ones first",
		Tags:        []string{"simulators"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.SimulatorListResponse, error) {
		sims, err := s.options.Simulators.List(ctx)
		if err != nil {
			return nil, simctlError("Failed to list simulators", err)
		}

		out := make([]models.SimulatorData, 0, len(sims))
		for _, sim := range sims {
			out = append(out, models.SimulatorData{
				UDID:    sim.UDID,
				Name:    sim.Name,
				State:   sim.State,
				Runtime: sim.Runtime,
			})
		}
		return &models.SimulatorListResponse{
			Body: models.SimulatorListData{Simulators: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "launch-app",
		Method:      http.MethodPost,
		Path:        "/api/simulators/{udid}/launch",
		Summary:     "Launch app",
		Description: "Boot the simulator, install the app bundle and launch it",
		Tags:        []string{"simulators"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500, 503},
	}, func(ctx context.Context, input *models.LaunchRequest) (*models.LaunchResponse, error) {
		if err := simctl.ValidateUDID(input.UDID); err != nil {
			return nil, huma.Error400BadRequest("Invalid udid", err)
		}
		bundleID, err := s.options.Simulators.InstallAndLaunch(ctx, input.UDID, input.Body.AppPath, input.Body.BundleID)
		if err != nil {
			return nil, simctlError("Failed to launch app", err)
		}
		return &models.LaunchResponse{
			Body: models.LaunchData{
				UDID:     input.UDID,
				BundleID: bundleID,
				Message:  "App launched",
			},
		}, nil
	})
}

func simctlError(msg string, err error) error {
	if errors.Is(err, simctl.ErrNotInstalled) {
		return huma.Error503ServiceUnavailable(msg, err)
	}
	return huma.Error500InternalServerError(msg, err)
}
