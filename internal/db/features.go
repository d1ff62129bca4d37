package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

const featuresSchema = `
CREATE TABLE IF NOT EXISTS wfs_features (
	layer_id   VARCHAR NOT NULL,
	z          INTEGER NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	feature_id VARCHAR,
	geom_type  VARCHAR,
	geometry   VARCHAR,
	properties VARCHAR,
	loaded_at  TIMESTAMP DEFAULT current_timestamp
)`

// Feature is a stored WFS feature. Geometry is WKT.
type Feature struct {
	LayerID    string         `json:"layerId"`
	Tile       maptile.Tile   `json:"tile"`
	ID         string         `json:"id,omitempty"`
	GeomType   string         `json:"geomType"`
	Geometry   string         `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FeatureStore keeps the features of loaded vector tiles, one row per
// feature and tile.
type FeatureStore struct {
	db *sql.DB
}

// NewFeatureStore creates the feature table if needed.
func NewFeatureStore(ctx context.Context, db *sql.DB) (*FeatureStore, error) {
	if _, err := db.ExecContext(ctx, featuresSchema); err != nil {
		return nil, fmt.Errorf("create wfs_features: %w", err)
	}
	return &FeatureStore{db: db}, nil
}

// StoreFeatures replaces the features of one tile.
func (s *FeatureStore) StoreFeatures(ctx context.Context, layerID string, t maptile.Tile, fc *geojson.FeatureCollection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wfs_features WHERE layer_id = ? AND z = ? AND x = ? AND y = ?`,
		layerID, int(t.Z), int(t.X), int(t.Y)); err != nil {
		return fmt.Errorf("clear tile: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO wfs_features (layer_id, z, x, y, feature_id, geom_type, geometry, properties)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range FromCollection(layerID, t, fc) {
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("feature %s properties: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			layerID, int(t.Z), int(t.X), int(t.Y),
			f.ID, f.GeomType, f.Geometry, string(props)); err != nil {
			return fmt.Errorf("insert feature: %w", err)
		}
	}
	return tx.Commit()
}

// FromCollection converts the features of one tile. Features without
// geometry are skipped.
func FromCollection(layerID string, t maptile.Tile, fc *geojson.FeatureCollection) []Feature {
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		var id string
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		out = append(out, Feature{
			LayerID:    layerID,
			Tile:       t,
			ID:         id,
			GeomType:   f.Geometry.GeoJSONType(),
			Geometry:   wkt.MarshalString(f.Geometry),
			Properties: f.Properties,
		})
	}
	return out
}

// Features returns the stored features of a layer.
func (s *FeatureStore) Features(ctx context.Context, layerID string) ([]Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT z, x, y, feature_id, geom_type, geometry, properties
		 FROM wfs_features WHERE layer_id = ? ORDER BY z, x, y, feature_id`, layerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var (
			z, x, y int
			f       = Feature{LayerID: layerID}
			props   string
		)
		if err := rows.Scan(&z, &x, &y, &f.ID, &f.GeomType, &f.Geometry, &props); err != nil {
			return nil, err
		}
		f.Tile = maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
		if props != "" && props != "null" {
			if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
				return nil, fmt.Errorf("feature %s properties: %w", f.ID, err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Count returns the number of stored features of a layer.
func (s *FeatureStore) Count(ctx context.Context, layerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM wfs_features WHERE layer_id = ?`, layerID).Scan(&n)
	return n, err
}

// DeleteLayer drops all features of a layer.
func (s *FeatureStore) DeleteLayer(ctx context.Context, layerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wfs_features WHERE layer_id = ?`, layerID)
	return err
}
