package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/cornea/internal/web/handlers"
	"github.com/kozaktomas/cornea/internal/web/middleware"
)

// requestTimeout bounds plain request handlers. Streams and synchronous
// retrains are not bounded by it.
const requestTimeout = time.Minute

func (s *Server) setupRoutes(origins middleware.Origins) {
	log := s.log.WithField("component", "api")

	// Create handlers
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Model, s.deps.Store, s.validate, log)
	modelHandler := handlers.NewModelHandler(s.deps.Model, s.deps.Models)
	retrainHandler := handlers.NewRetrainHandler(s.deps.Model, s.deps.Store, s.jobManager, s.validate, log)
	streamHandler := handlers.NewStreamHandler(recognizeHandler, s.config.RateLimit, s.config.RateBurst, origins.CheckOrigin, log)

	limited := func(next http.Handler) http.Handler { return next }
	if s.config.RateLimit > 0 {
		limited = middleware.NewRateLimiter(s.config.RateLimit, s.config.RateBurst, log).Handler
	}

	s.router.Get("/", handlers.Hello(s.deps.Version))
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Legacy single-face endpoints
	s.router.With(limited, chiMiddleware.Timeout(requestTimeout)).Post("/detect_frame", recognizeHandler.DetectFrame)
	s.router.With(limited, chiMiddleware.Timeout(requestTimeout)).Post("/model/detect_frame", recognizeHandler.DetectFrame)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			r.With(limited).Post("/recognize", recognizeHandler.Recognize)

			// Model
			r.Get("/model", modelHandler.Get)
			r.Get("/models", modelHandler.List)

			// Retrain jobs
			r.Post("/retrain/jobs", retrainHandler.StartJob)
			r.Get("/retrain/jobs/{jobId}", retrainHandler.Status)
			r.Delete("/retrain/jobs/{jobId}", retrainHandler.Cancel)

			// Persons
			if s.deps.Store != nil {
				personsHandler := handlers.NewPersonsHandler(s.deps.Store, s.validate, log)
				r.Get("/persons", personsHandler.List)
				r.Post("/persons", personsHandler.Create)
				r.Get("/persons/{tag}", personsHandler.Get)
				r.Post("/persons/{tag}/faces", personsHandler.AddFace)
				r.Get("/persons/{tag}/faces/{id}", personsHandler.GetFace)
			}
		})

		// Long-running
		r.Post("/retrain", retrainHandler.Retrain)
		r.Get("/retrain/jobs/{jobId}/events", retrainHandler.Events)
		r.Get("/stream", streamHandler.Serve)
	})
}
