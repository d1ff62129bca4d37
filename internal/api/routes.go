// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-geo-ogc/internal/db"
	"github.com/joeblew999/plat-geo-ogc/internal/humastar"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Map      *service.MapService
	WMS      *ogc.WMSService
	WFS      *ogc.WFSService
	Loader   *source.Loader
	Features *db.FeatureStore
	DB       *sql.DB
}

// RegisterRoutes registers all REST routes.
func RegisterRoutes(api huma.API, svc *Services, info *InfoHandler) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewDBHandler(svc.DB).RegisterRoutes(api)
	if info != nil {
		info.RegisterRoutes(api)
	}
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"topp:states"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

var layerActions = struct {
	remove, features, tiles humastar.ActionDef
}{
	remove:   humastar.ActionDef{Rel: "delete", Pattern: "/api/v1/map/layers/%s", Method: http.MethodDelete, Title: "Remove layer"},
	features: humastar.ActionDef{Rel: "features", Pattern: "/api/v1/map/layers/%s/features", Method: http.MethodGet, Title: "Load features"},
	tiles:    humastar.ActionDef{Rel: "tiles", Pattern: "/api/v1/map/layers/%s/tiles/{z}/{x}/{y}", Method: http.MethodGet, Title: "Map tiles"},
}

// LayerBody is a map layer with state-dependent actions.
type LayerBody struct {
	service.LayerState
}

// Actions links to what can be done with the layer in its current state.
func (b LayerBody) Actions() []humastar.Action {
	var actions []humastar.Action
	if b.Removable {
		actions = append(actions, layerActions.remove.For(b.ID))
	}
	if b.Vector != nil {
		actions = append(actions, layerActions.features.For(b.ID))
	}
	if b.TileWMS != nil {
		actions = append(actions, layerActions.tiles.For(b.ID))
	}
	return actions
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterMap registers map layer routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map/layers", h.GetLayers, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map/layers/{id}", h.GetLayer, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/map/layers/{id}", h.DeleteLayer, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map/layers/{id}/features", h.GetFeatures, huma.OperationTags("map"))
	huma.Register(api, huma.Operation{
		OperationID:   "get-layer-tile",
		Method:        http.MethodGet,
		Path:          "/api/v1/map/layers/{id}/tiles/{z}/{x}/{y}",
		Summary:       "Redirect to the WMS GetMap request of a tile",
		Tags:          []string{"map"},
		DefaultStatus: http.StatusFound,
	}, h.GetTile)
}

// RegisterCapabilities registers the capability browsing route.
func (h *APIHandler) RegisterCapabilities(api huma.API) {
	huma.Get(api, "/api/v1/capabilities", h.GetCapabilities, huma.OperationTags("ogc"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []service.LayerState }, error) {
	return &struct{ Body []service.LayerState }{Body: h.svc.Map.Snapshot()}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*struct{ Body LayerBody }, error) {
	layer, ok := h.svc.Map.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &struct{ Body LayerBody }{Body: LayerBody{layer.Snapshot()}}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Map.Remove(input.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, service.ErrNotRemovable):
			return nil, huma.Error409Conflict(err.Error())
		default:
			return nil, huma.Error500InternalServerError("remove layer", err)
		}
	}
	if h.svc.Features != nil {
		if err := h.svc.Features.DeleteLayer(ctx, input.ID); err != nil {
			return nil, huma.Error500InternalServerError("drop layer features", err)
		}
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer removed"}}, nil
}

type TileInput struct {
	IDInput
	Z int `path:"z" minimum:"0" maximum:"19" doc:"Zoom"`
	X int `path:"x" minimum:"0" doc:"Column"`
	Y int `path:"y" minimum:"0" doc:"Row"`
}

func (in TileInput) tile() maptile.Tile {
	return maptile.New(uint32(in.X), uint32(in.Y), maptile.Zoom(in.Z))
}

// GetFeatures loads one tile of a vector layer and returns the features
// loaded for the layer so far.
func (h *APIHandler) GetFeatures(ctx context.Context, input *struct {
	IDInput
	Z      int `query:"z" required:"true" minimum:"0" maximum:"19" doc:"Zoom"`
	X      int `query:"x" required:"true" minimum:"0" doc:"Column"`
	Y      int `query:"y" required:"true" minimum:"0" doc:"Row"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Page size"`
}) (*struct{ Body humastar.Page[db.Feature] }, error) {
	layer, ok := h.svc.Map.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	st := layer.Snapshot()
	if st.Vector == nil {
		return nil, huma.Error400BadRequest("layer is not a vector layer")
	}

	tile := maptile.New(uint32(input.X), uint32(input.Y), maptile.Zoom(input.Z))
	fc, err := h.svc.Loader.LoadTile(ctx, st.ID, st.Vector, tile)
	if err != nil {
		return nil, upstreamError(err)
	}

	features := db.FromCollection(st.ID, tile, fc)
	if h.svc.Features != nil {
		if features, err = h.svc.Features.Features(ctx, st.ID); err != nil {
			return nil, huma.Error500InternalServerError("list features", err)
		}
	}
	return &struct{ Body humastar.Page[db.Feature] }{
		Body: humastar.Paginate(features, input.Offset, input.Limit),
	}, nil
}

type TileOutput struct {
	Location string `header:"Location" doc:"WMS GetMap URL"`
}

// GetTile redirects to the GetMap request of a tiled WMS layer.
func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	layer, ok := h.svc.Map.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	st := layer.Snapshot()
	if st.TileWMS == nil {
		return nil, huma.Error400BadRequest("layer is not a tiled WMS layer")
	}
	u, err := st.TileWMS.TileURL(source.NewXYZGrid(source.MaxZoom), input.tile())
	if err != nil {
		if errors.Is(err, source.ErrOutOfRange) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("build tile url", err)
	}
	return &TileOutput{Location: u}, nil
}

type CapabilitiesInput struct {
	URL     string `query:"url" required:"true" doc:"Service URL" example:"http://localhost:8080/geoserver/wms"`
	Service string `query:"service" enum:"WMS,WFS" default:"WMS" doc:"Service type"`
}

// GetCapabilities fetches and decodes a capability tree.
func (h *APIHandler) GetCapabilities(ctx context.Context, input *CapabilitiesInput) (*struct{ Body *ogc.Layer }, error) {
	var (
		tree *ogc.Layer
		err  error
	)
	if input.Service == "WFS" {
		tree, err = h.svc.WFS.GetCapabilities(ctx, input.URL)
	} else {
		tree, err = h.svc.WMS.GetCapabilities(ctx, input.URL)
	}
	if err != nil {
		return nil, upstreamError(err)
	}
	return &struct{ Body *ogc.Layer }{Body: tree}, nil
}

// upstreamError maps OGC and loader failures to HTTP errors.
func upstreamError(err error) error {
	var httpErr *ogc.HTTPError
	switch {
	case errors.Is(err, source.ErrOutOfRange):
		return huma.Error400BadRequest(err.Error())
	case errors.As(err, &httpErr):
		return huma.Error502BadGateway(fmt.Sprintf("upstream returned %s", httpErr))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("upstream request canceled", err)
	default:
		return huma.Error502BadGateway("upstream request failed", err)
	}
}
