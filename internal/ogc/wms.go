package ogc

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
)

// WMSService fetches WMS capabilities.
type WMSService struct {
	Client *Client
}

// GetCapabilities fetches and decodes the layer tree of a WMS endpoint.
func (s *WMSService) GetCapabilities(ctx context.Context, rawURL string) (*Layer, error) {
	body, err := s.Client.get(ctx, rawURL, url.Values{
		"SERVICE": {"WMS"},
		"REQUEST": {"GetCapabilities"},
		"VERSION": {"1.3.0"},
	})
	if err != nil {
		return nil, err
	}
	return ParseWMSCapabilities(body)
}

type wmsCapabilities struct {
	XMLName    xml.Name
	Version    string `xml:"version,attr"`
	Capability struct {
		Layer *wmsLayer `xml:"Layer"`
	} `xml:"Capability"`
}

type wmsLayer struct {
	Name     string `xml:"Name"`
	Title    string `xml:"Title"`
	Abstract string `xml:"Abstract"`
	// WMS 1.3.0
	GeoBBox *struct {
		West  float64 `xml:"westBoundLongitude"`
		East  float64 `xml:"eastBoundLongitude"`
		South float64 `xml:"southBoundLatitude"`
		North float64 `xml:"northBoundLatitude"`
	} `xml:"EX_GeographicBoundingBox"`
	// WMS 1.1.1
	LatLonBBox *struct {
		MinX float64 `xml:"minx,attr"`
		MinY float64 `xml:"miny,attr"`
		MaxX float64 `xml:"maxx,attr"`
		MaxY float64 `xml:"maxy,attr"`
	} `xml:"LatLonBoundingBox"`
	Dimension []struct {
		Name    string `xml:"name,attr"`
		Units   string `xml:"units,attr"`
		Default string `xml:"default,attr"`
		Values  string `xml:",chardata"`
	} `xml:"Dimension"`
	Extent []struct {
		Name    string `xml:"name,attr"`
		Default string `xml:"default,attr"`
		Values  string `xml:",chardata"`
	} `xml:"Extent"`
	Style []struct {
		Name      string `xml:"Name"`
		Title     string `xml:"Title"`
		LegendURL []struct {
			Format         string `xml:"Format"`
			OnlineResource struct {
				Href string `xml:"href,attr"`
			} `xml:"OnlineResource"`
		} `xml:"LegendURL"`
	} `xml:"Style"`
	Layer []*wmsLayer `xml:"Layer"`
}

// ParseWMSCapabilities decodes a WMS 1.1.1 or 1.3.0 capabilities document.
func ParseWMSCapabilities(body []byte) (*Layer, error) {
	if err := checkException(body); err != nil {
		return nil, err
	}
	var caps wmsCapabilities
	if err := xml.Unmarshal(body, &caps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	switch caps.XMLName.Local {
	case "WMS_Capabilities", "WMT_MS_Capabilities":
	default:
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrInvalidDocument, caps.XMLName.Local)
	}
	if caps.Capability.Layer == nil {
		return nil, fmt.Errorf("%w: no Layer in Capability", ErrInvalidDocument)
	}
	return caps.Capability.Layer.toLayer(), nil
}

func (w *wmsLayer) toLayer() *Layer {
	l := &Layer{
		Name:     strings.TrimSpace(w.Name),
		Title:    strings.TrimSpace(w.Title),
		Abstract: strings.TrimSpace(w.Abstract),
	}

	switch {
	case w.GeoBBox != nil:
		l.BoundingBox = &orb.Bound{
			Min: orb.Point{w.GeoBBox.West, w.GeoBBox.South},
			Max: orb.Point{w.GeoBBox.East, w.GeoBBox.North},
		}
	case w.LatLonBBox != nil:
		l.BoundingBox = &orb.Bound{
			Min: orb.Point{w.LatLonBBox.MinX, w.LatLonBBox.MinY},
			Max: orb.Point{w.LatLonBBox.MaxX, w.LatLonBBox.MaxY},
		}
	}

	for _, d := range w.Dimension {
		l.Dimension = append(l.Dimension, Dimension{
			Name:    d.Name,
			Units:   d.Units,
			Default: d.Default,
			Values:  strings.TrimSpace(d.Values),
		})
	}
	// 1.1.1 carries the values in a separate Extent element.
	for _, e := range w.Extent {
		for i := range l.Dimension {
			if l.Dimension[i].Name == e.Name && l.Dimension[i].Values == "" {
				l.Dimension[i].Values = strings.TrimSpace(e.Values)
				if l.Dimension[i].Default == "" {
					l.Dimension[i].Default = e.Default
				}
			}
		}
	}

	for _, st := range w.Style {
		style := Style{Name: strings.TrimSpace(st.Name), Title: strings.TrimSpace(st.Title)}
		for _, lu := range st.LegendURL {
			style.LegendURL = append(style.LegendURL, LegendURL{
				Format:         strings.TrimSpace(lu.Format),
				OnlineResource: lu.OnlineResource.Href,
			})
		}
		l.Style = append(l.Style, style)
	}

	for _, child := range w.Layer {
		l.Layer = append(l.Layer, child.toLayer())
	}
	return l
}
