// Package config loads the add-layer dialog and map configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
)

// Dialog is the configuration surface of the add-layer dialog.
type Dialog struct {
	// URL is the default service endpoint.
	URL string `yaml:"url"`
	// AsVector adds layers as WFS vector layers instead of tiled WMS.
	AsVector bool `yaml:"asVector"`
	// AllowUserInput shows an editable URL field.
	AllowUserInput bool `yaml:"allowUserInput"`
	// SRSName is the projection of the map view.
	SRSName string `yaml:"srsName"`
	// ClassName is appended to the dialog's CSS classes.
	ClassName string `yaml:"className"`
}

// Map configures the map layers are added to.
type Map struct {
	Groups []service.GroupConfig `yaml:"groups"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Dialog Dialog `yaml:"dialog"`
	Map    Map    `yaml:"map"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Dialog: Dialog{
			URL:     "http://localhost:8080/geoserver/wms",
			SRSName: source.SRSMercator,
		},
		Map: Map{
			Groups: []service.GroupConfig{
				{ID: "basemaps", Title: "Base maps", Type: service.TypeBaseGroup},
			},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Dialog.SRSName == "" {
		cfg.Dialog.SRSName = source.SRSMercator
	}
	return cfg, cfg.Validate()
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.Dialog.URL == "" {
		return errors.New("dialog.url is required")
	}
	switch c.Dialog.SRSName {
	case source.SRSMercator, source.SRSWGS84:
	default:
		return fmt.Errorf("dialog.srsName %q is not supported", c.Dialog.SRSName)
	}
	for _, g := range c.Map.Groups {
		if g.ID == "" {
			return errors.New("map.groups: id is required")
		}
	}
	return nil
}
