package ogc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// RESTService queries the GeoServer REST API.
type RESTService struct {
	Client *Client
}

// RESTURL derives the REST base from an OGC endpoint such as
// http://host/geoserver/wms.
func RESTURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	p := strings.TrimSuffix(u.Path, "/")
	switch strings.ToLower(path.Base(p)) {
	case "wms", "wfs", "ows", "gwc":
		p = path.Dir(p)
	}
	u.Path = strings.TrimSuffix(p, "/") + "/rest"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// StyleName returns the default style of a published layer.
func (s *RESTService) StyleName(ctx context.Context, rawURL, layerName string) (string, error) {
	base, err := RESTURL(rawURL)
	if err != nil {
		return "", err
	}
	body, err := s.Client.get(ctx, base+"/layers/"+url.PathEscape(layerName)+".json", nil)
	if err != nil {
		return "", err
	}
	var doc struct {
		Layer struct {
			DefaultStyle struct {
				Name string `json:"name"`
			} `json:"defaultStyle"`
		} `json:"layer"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Layer.DefaultStyle.Name == "" {
		return "", fmt.Errorf("%w: layer %q has no default style", ErrInvalidDocument, layerName)
	}
	return doc.Layer.DefaultStyle.Name, nil
}
