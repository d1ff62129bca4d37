// Package service contains the map model layers are added to.
package service

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
)

// LayerKind is the rendering kind of a map layer.
type LayerKind string

const (
	KindTile   LayerKind = "tile"
	KindVector LayerKind = "vector"
	KindGroup  LayerKind = "group"
)

// Type tags recognised by the base-layer placement rule.
const (
	TypeBase      = "base"
	TypeBaseGroup = "base-group"
)

// LayerState is an immutable snapshot of a map layer.
// Single source of truth for JSON persistence and the REST API.
type LayerState struct {
	ID          string               `json:"id" doc:"Layer identifier (service layer name)" example:"topp:states"`
	Name        string               `json:"name" doc:"Service layer name" example:"topp:states"`
	Title       string               `json:"title" doc:"Display title" example:"USA Population"`
	EmptyTitle  bool                 `json:"emptyTitle,omitempty" doc:"Title is a placeholder because the service gave none"`
	Kind        LayerKind            `json:"kind" enum:"tile,vector,group" doc:"Rendering kind"`
	Type        string               `json:"type,omitempty" doc:"Type tag, e.g. base or base-group"`
	Visible     bool                 `json:"visible" doc:"Whether the layer is shown"`
	Removable   bool                 `json:"isRemovable" doc:"Whether users may remove the layer"`
	Selectable  bool                 `json:"isSelectable" doc:"Whether features may be selected"`
	WFST        bool                 `json:"isWFST,omitempty" doc:"Whether the layer supports WFS-T editing"`
	TimeInfo    string               `json:"timeInfo,omitempty" doc:"Time dimension values"`
	LegendURL   string               `json:"legendUrl,omitempty" doc:"Legend image URL"`
	StyleName   string               `json:"styleName,omitempty" doc:"Default style name"`
	PopupInfo   string               `json:"popupInfo,omitempty" doc:"Popup template"`
	BoundingBox *orb.Bound           `json:"EX_GeographicBoundingBox,omitempty" doc:"WGS84 extent"`
	WFSInfo     *ogc.FeatureTypeInfo `json:"wfsInfo,omitempty" doc:"Feature type schema"`
	TileWMS     *source.TileWMS      `json:"tileWMS,omitempty" doc:"Tiled WMS source"`
	Vector      *source.Vector       `json:"vector,omitempty" doc:"WFS vector source"`
	Layers      []LayerState         `json:"layers,omitempty" doc:"Child layers of a group"`
}

// GroupConfig seeds a top-level layer group.
type GroupConfig struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}
