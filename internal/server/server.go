// Package server wires the services, the add-layer dialog and the HTTP
// routes together.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-geo-ogc/internal/api"
	"github.com/joeblew999/plat-geo-ogc/internal/api/editor"
	"github.com/joeblew999/plat-geo-ogc/internal/config"
	"github.com/joeblew999/plat-geo-ogc/internal/db"
	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/modal"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
	"github.com/joeblew999/plat-geo-ogc/internal/templates"
)

// RequestTimeout bounds every OGC request.
const RequestTimeout = 30 * time.Second

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	Locale  string
	// TemplateDir replaces the embedded HTML fragments when set.
	TemplateDir string
	App         config.Config
	Logger      *slog.Logger
}

// Server is the geo HTTP server.
type Server struct {
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	dialog   *modal.Controller
}

// NewDialog builds an add-layer dialog backed by live OGC services.
func NewDialog(cfg config.Dialog, client *ogc.Client, host modal.MapHost, locale string, logger *slog.Logger) *modal.Controller {
	wfs := &ogc.WFSService{Client: client}
	return modal.New(modal.Config{
		URL:            cfg.URL,
		AsVector:       cfg.AsVector,
		AllowUserInput: cfg.AllowUserInput,
		SRSName:        cfg.SRSName,
		ClassName:      cfg.ClassName,
	}, modal.Deps{
		WMS:          &ogc.WMSService{Client: client},
		WFS:          wfs,
		Styles:       &ogc.RESTService{Client: client},
		FeatureTypes: wfs,
		Host:         host,
		Localizer:    i18n.New(locale),
	}, logger)
}

// SeedGroups creates the configured top-level groups that are missing.
func SeedGroups(maps *service.MapService, groups []service.GroupConfig) error {
	for _, g := range groups {
		if _, err := maps.EnsureGroup(g); err != nil {
			return fmt.Errorf("seed group %s: %w", g.ID, err)
		}
	}
	return nil
}

// New creates a new geo server.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-geo-ogc API", "1.0.0")
	humaConfig.Info.Description = "Browse OGC WMS/WFS services and add their layers to a map."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	maps := service.NewMapService(cfg.DataDir, service.NewEventBus(), logger)
	if err := SeedGroups(maps, cfg.App.Map.Groups); err != nil {
		return nil, err
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if cfg.TemplateDir != "" {
		if err := renderer.Reload(cfg.TemplateDir); err != nil {
			return nil, fmt.Errorf("load templates from %s: %w", cfg.TemplateDir, err)
		}
		logger.Info("templates loaded from disk", "dir", cfg.TemplateDir)
	}

	client := ogc.NewClient(RequestTimeout)
	services := &api.Services{
		Map:    maps,
		WMS:    &ogc.WMSService{Client: client},
		WFS:    &ogc.WFSService{Client: client},
		Loader: &source.Loader{HTTP: client.HTTP, Logger: logger},
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		renderer: renderer,
		dialog:   NewDialog(cfg.App.Dialog, client, maps, cfg.Locale, logger),
	}

	// A missing database only disables feature storage and queries.
	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "geo"})
	if err != nil {
		logger.Warn("duckdb unavailable", "error", err)
	} else if store, err := db.NewFeatureStore(context.Background(), conn); err != nil {
		logger.Warn("feature store unavailable", "error", err)
		conn.Close()
	} else {
		s.db = conn
		services.DB = conn
		services.Features = store
		services.Loader.Sink = store
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Dialog returns the add-layer dialog.
func (s *Server) Dialog() *modal.Controller {
	return s.dialog
}

// Maps returns the map service.
func (s *Server) Maps() *service.MapService {
	return s.services.Map
}

// Close tears down the dialog and closes the database.
func (s *Server) Close() error {
	s.dialog.Teardown()
	s.dialog.Wait()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services, api.NewInfoHandler(s.config.DataDir, s.db != nil, s.config.Locale))
	editor.NewAddLayerHandler(s.dialog, s.services.Map, s.renderer, s.config.Locale).RegisterRoutes(s.humaAPI)

	s.mux.HandleFunc("GET /editor", s.handleEditor)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-geo-ogc",
		"status":  "running",
	})
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	loc := i18n.New(r.Header.Get("Accept-Language"), s.config.Locale)
	signals, _ := json.Marshal(map[string]any{"url": s.config.App.Dialog.URL, "error": "", "success": ""})
	html, err := s.renderer.Render("editor-page", map[string]any{
		"Lang":    loc.Tag().String(),
		"Title":   loc.Format(i18n.MsgTitle, i18n.Args{"serviceType": s.dialog.Config().ServiceType()}),
		"Signals": string(signals),
	})
	if err != nil {
		s.logger.Error("render editor page", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
