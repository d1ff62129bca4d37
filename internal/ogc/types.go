// Package ogc talks to OGC web services (WMS, WFS) and the GeoServer REST API.
package ogc

import "github.com/paulmach/orb"

// Layer is a node of a capability tree. The root and all descendants share
// this shape. Nodes with children are groups; named nodes without children
// are leaf layers. A named group is both. BoundingBox holds the
// EX_GeographicBoundingBox in WGS84.
type Layer struct {
	Name        string      `json:"Name,omitempty" yaml:"name,omitempty"`
	Title       string      `json:"Title" yaml:"title"`
	Abstract    string      `json:"Abstract,omitempty" yaml:"abstract,omitempty"`
	Layer       []*Layer    `json:"Layer,omitempty" yaml:"layers,omitempty"`
	BoundingBox *orb.Bound  `json:"EX_GeographicBoundingBox,omitempty" yaml:"bbox,omitempty"`
	Dimension   []Dimension `json:"Dimension,omitempty" yaml:"dimensions,omitempty"`
	Style       []Style     `json:"Style,omitempty" yaml:"styles,omitempty"`
}

// IsGroup reports whether the node has children.
func (l *Layer) IsGroup() bool {
	return len(l.Layer) > 0
}

// IsLeaf reports whether the node is a named layer without children.
func (l *Layer) IsLeaf() bool {
	return l.Name != "" && !l.IsGroup()
}

// Selectable reports whether the node can be added to a map.
func (l *Layer) Selectable() bool {
	return l.Name != ""
}

// Dimension describes a layer dimension such as time or elevation.
type Dimension struct {
	Name    string `json:"name" yaml:"name"`
	Units   string `json:"units,omitempty" yaml:"units,omitempty"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
	Values  string `json:"values" yaml:"values"`
}

// Style is a named rendering of a layer.
type Style struct {
	Name      string      `json:"Name,omitempty" yaml:"name,omitempty"`
	Title     string      `json:"Title,omitempty" yaml:"title,omitempty"`
	LegendURL []LegendURL `json:"LegendURL,omitempty" yaml:"legendURL,omitempty"`
}

// LegendURL points at a legend image for a style.
type LegendURL struct {
	Format         string `json:"Format,omitempty" yaml:"format,omitempty"`
	OnlineResource string `json:"OnlineResource" yaml:"onlineResource"`
}

// FeatureTypeInfo is the schema of a WFS feature type.
type FeatureTypeInfo struct {
	URL           string      `json:"url" doc:"WFS endpoint"`
	FeatureNS     string      `json:"featureNS" doc:"Feature namespace URI"`
	FeaturePrefix string      `json:"featurePrefix" doc:"Feature namespace prefix"`
	FeatureType   string      `json:"featureType" doc:"Unqualified feature type name"`
	GeometryType  string      `json:"geometryType" doc:"Geometry type of the default geometry property"`
	GeometryName  string      `json:"geometryName" doc:"Name of the default geometry property"`
	Attributes    []Attribute `json:"attributes" doc:"Non-geometry attributes"`
}

// Attribute is a non-geometry property of a feature type.
type Attribute struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
