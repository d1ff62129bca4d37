// Package editor contains Datastar SSE handlers for the editor UI.
package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-ogc/internal/humastar"
	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/modal"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/templates"
)

const (
	dialogSelector    = "#add-layer-modal"
	layerListSelector = "#layer-list"
)

// AddLayerHandler drives the add-layer dialog over Datastar SSE.
type AddLayerHandler struct {
	humastar.Handler
	dialog *modal.Controller
	maps   *service.MapService
	locale string
}

// NewAddLayerHandler creates the dialog handler. locale is used when a
// request carries no Accept-Language header.
func NewAddLayerHandler(dialog *modal.Controller, maps *service.MapService, renderer *templates.Renderer, locale string) *AddLayerHandler {
	return &AddLayerHandler{
		Handler: humastar.Handler{Renderer: renderer},
		dialog:  dialog,
		maps:    maps,
		locale:  locale,
	}
}

func (h *AddLayerHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/addlayer", h.Get, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/addlayer/open", h.Open, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/addlayer/connect", h.Connect, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/addlayer/close", h.Close, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/addlayer/dismiss", h.Dismiss, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/addlayer/layers/{path}", h.AddLayer, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/events", h.Events, huma.OperationTags("editor"))
}

// LocaleInput selects the dialog language.
type LocaleInput struct {
	AcceptLanguage string `header:"Accept-Language" doc:"Preferred dialog language"`
}

func (h *AddLayerHandler) localizer(in LocaleInput) i18n.Localizer {
	return i18n.New(in.AcceptLanguage, h.locale)
}

func (h *AddLayerHandler) Get(ctx context.Context, input *LocaleInput) (*huma.StreamResponse, error) {
	loc := h.localizer(*input)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
		h.patchLayers(sse, loc)
	}), nil
}

func (h *AddLayerHandler) Open(ctx context.Context, input *LocaleInput) (*huma.StreamResponse, error) {
	h.dialog.Open(ctx)
	loc := h.localizer(*input)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
	}), nil
}

type ConnectInput struct {
	LocaleInput
	RawBody []byte
}

func (h *AddLayerHandler) Connect(ctx context.Context, input *ConnectInput) (*huma.StreamResponse, error) {
	signals, err := (&humastar.SignalsInput{RawBody: input.RawBody}).MustParse()
	if err != nil {
		return nil, err
	}
	if url := signals.String("url"); url != "" {
		h.dialog.SetInput(url)
	}
	h.dialog.Connect(ctx)

	loc := h.localizer(input.LocaleInput)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
	}), nil
}

func (h *AddLayerHandler) Close(ctx context.Context, input *LocaleInput) (*huma.StreamResponse, error) {
	h.dialog.Close()
	loc := h.localizer(*input)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
	}), nil
}

func (h *AddLayerHandler) Dismiss(ctx context.Context, input *LocaleInput) (*huma.StreamResponse, error) {
	h.dialog.DismissError()
	loc := h.localizer(*input)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
	}), nil
}

type AddLayerInput struct {
	LocaleInput
	Path string `path:"path" doc:"Index path of the layer in the capability tree" example:"0-1"`
}

func (h *AddLayerHandler) AddLayer(ctx context.Context, input *AddLayerInput) (*huma.StreamResponse, error) {
	layer, err := h.dialog.Click(input.Path)
	if err != nil {
		switch {
		case errors.Is(err, modal.ErrNoTree), errors.Is(err, modal.ErrNotClickable),
			errors.Is(err, modal.ErrClosed), errors.Is(err, modal.ErrTornDown):
			return nil, huma.Error409Conflict(err.Error())
		default:
			return nil, huma.Error400BadRequest(err.Error())
		}
	}

	loc := h.localizer(input.LocaleInput)
	return h.Stream(func(sse humastar.SSE) {
		h.patchDialog(sse, loc)
		h.patchLayers(sse, loc)
		sse.Success(loc.Format(i18n.MsgLayerAdded, i18n.Args{"title": layer.Snapshot().Title}))
		sse.DispatchCustomEvent("layer-changed", map[string]any{
			"action": service.ActionCreated, "id": layer.ID(),
		})
	}), nil
}

// Events streams dialog and map changes until the client disconnects or
// the dialog is torn down.
func (h *AddLayerHandler) Events(ctx context.Context, input *LocaleInput) (*huma.StreamResponse, error) {
	loc := h.localizer(*input)
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			done := humaCtx.Context().Done()

			updates, stop := h.dialog.Subscribe()
			defer stop()
			bus := h.maps.Bus()
			ch := bus.Subscribe()
			defer bus.Unsubscribe(ch)

			for {
				select {
				case <-done:
					return
				case _, ok := <-updates:
					if !ok {
						return
					}
					h.patchDialog(sse, loc)
				case ev := <-ch:
					h.patchLayers(sse, loc)
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}

func (h *AddLayerHandler) patchDialog(sse humastar.SSE, loc i18n.Localizer) {
	sse.Replace(h.MustRender("addlayer-dialog", h.dialog.View(loc)), dialogSelector)
}

func (h *AddLayerHandler) patchLayers(sse humastar.SSE, loc i18n.Localizer) {
	snap := h.maps.Snapshot()
	items := make([]any, len(snap))
	for i, st := range snap {
		items[i] = st
	}
	sse.Patch(h.RenderList("layer-card", items,
		loc.Format(i18n.MsgNoLayers, nil), loc.Format(i18n.MsgNoLayersHint, nil)), layerListSelector)
}
