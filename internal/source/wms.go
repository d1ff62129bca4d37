package source

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// ErrOutOfRange is returned for tiles outside the grid.
var ErrOutOfRange = errors.New("tile out of range")

// TileWMS issues WMS GetMap requests for XYZ tiles.
type TileWMS struct {
	URL        string            `json:"url" doc:"WMS endpoint"`
	Params     map[string]string `json:"params" doc:"Extra GetMap parameters"`
	WrapX      bool              `json:"wrapX" doc:"Wrap tiles around the antimeridian"`
	ServerType string            `json:"serverType,omitempty" doc:"Server flavour"`
}

// NewTileWMS returns a GeoServer tiled WMS source for one layer.
func NewTileWMS(rawURL, layerName string, wrapX bool) *TileWMS {
	return &TileWMS{
		URL:        rawURL,
		Params:     map[string]string{"LAYERS": layerName},
		WrapX:      wrapX,
		ServerType: "geoserver",
	}
}

// TileURL returns the GetMap URL for t.
func (s *TileWMS) TileURL(grid TileGrid, t maptile.Tile) (string, error) {
	if t.Z > grid.MaxZoom {
		return "", fmt.Errorf("%w: zoom %d > %d", ErrOutOfRange, t.Z, grid.MaxZoom)
	}
	n := uint32(1) << t.Z
	if t.Y >= n {
		return "", fmt.Errorf("%w: y=%d at zoom %d", ErrOutOfRange, t.Y, t.Z)
	}
	if t.X >= n {
		if !s.WrapX {
			return "", fmt.Errorf("%w: x=%d at zoom %d", ErrOutOfRange, t.X, t.Z)
		}
		t.X %= n
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", s.URL, err)
	}
	q := u.Query()
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", "1.3.0")
	q.Set("FORMAT", "image/png")
	q.Set("TRANSPARENT", "true")
	q.Set("STYLES", "")
	q.Set("WIDTH", strconv.Itoa(TileSize))
	q.Set("HEIGHT", strconv.Itoa(TileSize))
	q.Set("CRS", SRSMercator)
	q.Set("BBOX", joinExtent(grid.Extent(t)))
	for k, v := range s.Params {
		q.Set(strings.ToUpper(k), v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// joinExtent formats minx,miny,maxx,maxy.
func joinExtent(b orb.Bound) string {
	parts := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	return strings.Join(out, ",")
}
