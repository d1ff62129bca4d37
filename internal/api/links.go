package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-ogc/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/map/layers>; rel="layers"`,
		`</api/v1/capabilities>; rel="capabilities"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/map/layers>; rel="layers"`,
	},
	"/api/v1/map/layers": {
		`</api/v1/capabilities>; rel="capabilities"`,
		`</api/v1/editor/addlayer>; rel="add"`,
	},
	"/api/v1/map/layers/{id}": {
		`</api/v1/map/layers>; rel="collection"`,
	},
	"/api/v1/map/layers/{id}/features": {
		`</api/v1/tables>; rel="tables"`,
	},
	"/api/v1/capabilities": {
		`</api/v1/map/layers>; rel="layers"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return humastar.LinkTransformer(links)
}
