package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/simstream/internal/api/models"
	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/metrics"
	"github.com/smazurov/simstream/internal/mjpeg"
	"github.com/smazurov/simstream/internal/session"
	"github.com/smazurov/simstream/internal/simctl"
)

// streamParams fills omitted fps/quality from the server defaults, then clamps.
func (s *Server) streamParams(fps int, quality float64) capture.Params {
	if fps == 0 {
		fps = s.options.Defaults.FPS
	}
	if quality == 0 {
		quality = s.options.Defaults.Quality
	}
	return capture.ClampParams(fps, quality)
}

// openSession finds or starts the session for udid and waits until it is
// producing frames. A session that misses the start deadline with nobody
// else waiting is torn down.
func (s *Server) openSession(ctx context.Context, udid string, params capture.Params) (*session.Session, error) {
	if err := simctl.ValidateUDID(udid); err != nil {
		return nil, huma.Error400BadRequest("Invalid udid", err)
	}
	sess, created, err := s.registry.GetOrCreate(udid, params)
	if err != nil {
		return nil, huma.Error400BadRequest("Cannot start capture", err)
	}
	if created {
		s.logger.Info("Starting capture", "udid", udid, "fps", params.FPS, "quality", params.Quality)
	}

	if err := sess.WaitStarted(ctx, s.options.StartTimeout); err != nil {
		if !errors.Is(err, capture.ErrExhausted) && s.registry.Abandon(sess) {
			s.logger.Warn("Abandoned capture that never started", "udid", udid, "error", err)
		}
		return nil, startError(err)
	}
	return sess, nil
}

// startError maps a WaitStarted failure to an HTTP error.
func startError(err error) error {
	switch {
	case errors.Is(err, capture.ErrExhausted):
		return huma.Error503ServiceUnavailable("No capture backend could start", err)
	case errors.Is(err, session.ErrStartTimeout):
		return huma.Error504GatewayTimeout("Capture did not start in time", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(499, "Client went away", err)
	default:
		return huma.Error503ServiceUnavailable("Capture ended", err)
	}
}

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "stream-mjpeg",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "MJPEG stream",
		Description: "Stream the simulator screen as multipart/x-mixed-replace JPEG parts. " +
			"A newer viewer of the same simulator takes over the stream.",
		Tags:     []string{"stream"},
		Security: withAuth(),
		Errors:   []int{400, 401, 503, 504},
	}, func(ctx context.Context, input *models.StreamInput) (*huma.StreamResponse, error) {
		params := s.streamParams(input.FPS, input.Quality)
		sess, err := s.openSession(ctx, input.UDID, params)
		if err != nil {
			return nil, err
		}

		consumer, err := sess.Attach()
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("Capture ended", err)
		}

		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				defer consumer.Release()
				s.serveMJPEG(hctx, sess, consumer)
			},
		}, nil
	})
}

func (s *Server) serveMJPEG(hctx huma.Context, sess *session.Session, consumer *session.Consumer) {
	hctx.SetHeader("Content-Type", mjpeg.ContentType)
	hctx.SetHeader("Cache-Control", "no-cache")
	hctx.SetHeader("Connection", "close")
	hctx.SetStatus(http.StatusOK)

	disconnected := metrics.StreamClientConnected("mjpeg")
	defer disconnected()

	ctx := hctx.Context()
	w := mjpeg.NewWriter(hctx.BodyWriter())
	sent := 0
	for {
		f, err := consumer.Next(ctx)
		if err != nil {
			s.logStreamEnd(sess.Identity, "mjpeg", sent, err)
			return
		}
		if err := w.WriteFrame(f, sess.Params.Quality); err != nil {
			s.logStreamEnd(sess.Identity, "mjpeg", sent, err)
			return
		}
		sent++
	}
}

func (s *Server) logStreamEnd(udid, transport string, sent int, err error) {
	switch {
	case errors.Is(err, session.ErrDisplaced):
		s.logger.Info("Viewer displaced by a newer one", "udid", udid, "transport", transport, "frames_sent", sent)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("Viewer disconnected", "udid", udid, "transport", transport, "frames_sent", sent)
	default:
		s.logger.Info("Stream ended", "udid", udid, "transport", transport, "frames_sent", sent, "error", err)
	}
}
