package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
)

// Vector loads WFS features per tile as GeoJSON.
type Vector struct {
	URL        string `json:"url" doc:"Service endpoint the layer was added from"`
	TypeName   string `json:"typeName" doc:"WFS feature type"`
	Projection string `json:"projection" doc:"Projection features are delivered in"`
	WrapX      bool   `json:"wrapX"`
	Format     string `json:"format" doc:"Feature encoding" example:"geojson"`
	Strategy   string `json:"strategy" doc:"Loading strategy" example:"tile"`
	MaxZoom    int    `json:"maxZoom" doc:"Maximum zoom of the tile strategy"`
}

// NewVector returns a tile-strategy GeoJSON source for a WFS feature type.
func NewVector(rawURL, typeName, projection string) *Vector {
	if projection == "" {
		projection = SRSMercator
	}
	return &Vector{
		URL:        rawURL,
		TypeName:   typeName,
		Projection: projection,
		Format:     "geojson",
		Strategy:   "tile",
		MaxZoom:    MaxZoom,
	}
}

// Grid returns the tile strategy grid.
func (v *Vector) Grid() TileGrid {
	return NewXYZGrid(v.MaxZoom)
}

// FeatureURL returns the GetFeature URL for a web mercator extent. The WFS
// endpoint is the source URL with its first "wms" replaced by "wfs"; any
// query on the source URL is replaced.
func (v *Vector) FeatureURL(extent orb.Bound) (string, error) {
	u, err := url.Parse(strings.Replace(v.URL, "wms", "wfs", 1))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", v.URL, err)
	}
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("request", "GetFeature")
	q.Set("version", "1.1.0")
	q.Set("typename", v.TypeName)
	q.Set("outputFormat", "application/json")
	q.Set("srsname", SRSMercator)
	q.Set("bbox", joinExtent(extent)+","+SRSMercator)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FeatureSink receives features as they are loaded.
type FeatureSink interface {
	StoreFeatures(ctx context.Context, layerID string, t maptile.Tile, fc *geojson.FeatureCollection) error
}

// Loader fetches vector tiles.
type Loader struct {
	HTTP   *http.Client
	Sink   FeatureSink
	Logger *slog.Logger
}

// LoadTile fetches the features of one tile. Features are reprojected to
// WGS84 when the source projection asks for it.
func (l *Loader) LoadTile(ctx context.Context, layerID string, v *Vector, t maptile.Tile) (*geojson.FeatureCollection, error) {
	grid := v.Grid()
	if !grid.Valid(t) {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrOutOfRange, t.Z, t.X, t.Y)
	}
	featureURL, err := v.FeatureURL(grid.Extent(t))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, featureURL, nil)
	if err != nil {
		return nil, err
	}
	client := l.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get features: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ogc.HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ogc.ErrInvalidDocument, err)
	}

	if v.Projection == SRSWGS84 {
		for _, f := range fc.Features {
			if f.Geometry != nil {
				f.Geometry = project.Geometry(f.Geometry, project.Mercator.ToWGS84)
			}
		}
	}

	if l.Sink != nil {
		if err := l.Sink.StoreFeatures(ctx, layerID, t, fc); err != nil {
			l.logger().Warn("store features failed", "layer", layerID, "tile", t, "error", err)
		}
	}
	return fc, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
