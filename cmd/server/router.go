package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/opcore/internal/api"
	apiMiddleware "github.com/phrazzld/opcore/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(app.monitor.Performance().Middleware)
	r.Use(middleware.Recoverer)

	monitoringHandler := api.NewMonitoringHandler(app.monitor, app.logger)
	taskHandler := api.NewTaskHandler(app.dispatcher, app.registry, app.logger)
	cacheHandler := api.NewCacheHandler(app.cache, app.logger)

	r.Get("/health", monitoringHandler.Health)
	r.Handle("/metrics", promhttp.HandlerFor(app.prometheus, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", monitoringHandler.Status)
		r.Get("/metrics/{name}", monitoringHandler.MetricSummary)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/stats", taskHandler.Stats)
			r.Get("/{id}", taskHandler.GetTask)
			r.Delete("/{id}", taskHandler.CancelTask)
		})

		r.Get("/cache/stats", cacheHandler.Stats)
		r.Delete("/cache", cacheHandler.Clear)
	})

	return r
}
