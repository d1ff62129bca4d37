// Package source describes where map layers get their data: tiled WMS
// GetMap images or WFS GetFeature vector tiles on an XYZ grid.
package source

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

const (
	// SRSMercator is the spatial reference all tile requests are made in.
	SRSMercator = "EPSG:3857"
	SRSWGS84    = "EPSG:4326"

	// MaxZoom caps the XYZ tile grid.
	MaxZoom  = 19
	TileSize = 256

	// maxLat is the latitude limit of web mercator.
	maxLat = 85.0511287798066
)

// TileGrid is a power-of-two XYZ grid in web mercator.
type TileGrid struct {
	MaxZoom maptile.Zoom
}

// NewXYZGrid returns a grid capped at maxZoom.
func NewXYZGrid(maxZoom int) TileGrid {
	if maxZoom < 0 {
		maxZoom = 0
	}
	return TileGrid{MaxZoom: maptile.Zoom(maxZoom)}
}

// Clamp limits z to the grid.
func (g TileGrid) Clamp(z maptile.Zoom) maptile.Zoom {
	if z > g.MaxZoom {
		return g.MaxZoom
	}
	return z
}

// Extent returns the tile's bounds in web mercator meters.
func (g TileGrid) Extent(t maptile.Tile) orb.Bound {
	b := t.Bound()
	return orb.Bound{
		Min: project.WGS84.ToMercator(b.Min),
		Max: project.WGS84.ToMercator(b.Max),
	}
}

// TilesForExtent lists the tiles at zoom z covering a web mercator extent.
func (g TileGrid) TilesForExtent(extent orb.Bound, z maptile.Zoom) []maptile.Tile {
	z = g.Clamp(z)
	lo := clampLonLat(project.Mercator.ToWGS84(extent.Min))
	hi := clampLonLat(project.Mercator.ToWGS84(extent.Max))

	minTile := maptile.At(lo, z)
	maxTile := maptile.At(hi, z)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}

// Valid reports whether t lies inside the grid.
func (g TileGrid) Valid(t maptile.Tile) bool {
	if t.Z > g.MaxZoom {
		return false
	}
	n := uint32(1) << t.Z
	return t.X < n && t.Y < n
}

// clampLonLat keeps p strictly inside the grid; maptile.At is exclusive at
// the far edges.
func clampLonLat(p orb.Point) orb.Point {
	const eps = 1e-9
	lon := math.Max(-180, math.Min(180-eps, p[0]))
	lat := math.Max(-maxLat+eps, math.Min(maxLat-eps, p[1]))
	return orb.Point{lon, lat}
}
