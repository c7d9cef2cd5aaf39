package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/simstream/internal/api/models"
	"github.com/smazurov/simstream/internal/session"
)

func sessionToAPI(info session.Info) models.SessionData {
	return models.SessionData{
		ID:        info.ID,
		UDID:      info.Identity,
		Mode:      info.Mode,
		State:     info.State,
		FPS:       info.FPS,
		Quality:   info.Quality,
		Frames:    info.Frames,
		Dropped:   info.Dropped,
		Attached:  info.Attached,
		CreatedAt: info.CreatedAt,
	}
}

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List sessions",
		Description: "List running capture sessions",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		list := s.registry.List()
		out := make([]models.SessionData, 0, len(list))
		for _, sess := range list {
			out = append(out, sessionToAPI(sess.Info()))
		}
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{udid}",
		Summary:     "Get session",
		Description: "Get the capture session of one simulator",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.SessionRequest) (*struct{ Body models.SessionData }, error) {
		sess, ok := s.registry.Get(input.UDID)
		if !ok {
			return nil, huma.Error404NotFound("No session for simulator " + input.UDID)
		}
		return &struct{ Body models.SessionData }{Body: sessionToAPI(sess.Info())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/api/sessions/{udid}",
		Summary:       "Stop session",
		Description:   "Stop capture for a simulator and disconnect its viewer",
		Tags:          []string{"sessions"},
		Security:      withAuth(),
		Errors:        []int{401, 404},
		DefaultStatus: http.StatusOK,
	}, func(_ context.Context, input *models.SessionRequest) (*models.SessionDeleteResponse, error) {
		if !s.registry.Remove(input.UDID) {
			return nil, huma.Error404NotFound("No session for simulator " + input.UDID)
		}
		s.logger.Info("Session removed via API", "udid", input.UDID)
		resp := &models.SessionDeleteResponse{}
		resp.Body.Message = "Session removed"
		return resp, nil
	})
}
