package ogc

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// WFSService fetches WFS capabilities and feature type schemas.
type WFSService struct {
	Client *Client
}

// GetCapabilities fetches the feature type list of a WFS endpoint. The
// result is a single group whose children are the feature types.
func (s *WFSService) GetCapabilities(ctx context.Context, rawURL string) (*Layer, error) {
	body, err := s.Client.get(ctx, rawURL, url.Values{
		"SERVICE": {"WFS"},
		"REQUEST": {"GetCapabilities"},
		"VERSION": {"1.1.0"},
	})
	if err != nil {
		return nil, err
	}
	return ParseWFSCapabilities(body)
}

// DescribeFeatureType fetches the schema of typeName. rawURL may be the WMS
// endpoint of the same server.
func (s *WFSService) DescribeFeatureType(ctx context.Context, rawURL, typeName string) (*FeatureTypeInfo, error) {
	endpoint := toWFS(rawURL)
	body, err := s.Client.get(ctx, endpoint, url.Values{
		"SERVICE":  {"WFS"},
		"REQUEST":  {"DescribeFeatureType"},
		"VERSION":  {"1.1.0"},
		"TYPENAME": {typeName},
	})
	if err != nil {
		return nil, err
	}
	info, err := ParseFeatureType(body, typeName)
	if err != nil {
		return nil, err
	}
	info.URL = endpoint
	return info, nil
}

type wfsCapabilities struct {
	XMLName xml.Name
	Title   string `xml:"ServiceIdentification>Title"`
	// WFS 1.0.0
	ServiceTitle string `xml:"Service>Title"`
	FeatureTypes []struct {
		Name     string `xml:"Name"`
		Title    string `xml:"Title"`
		Abstract string `xml:"Abstract"`
		WGS84BBox *struct {
			Lower string `xml:"LowerCorner"`
			Upper string `xml:"UpperCorner"`
		} `xml:"WGS84BoundingBox"`
	} `xml:"FeatureTypeList>FeatureType"`
}

// ParseWFSCapabilities decodes a WFS capabilities document.
func ParseWFSCapabilities(body []byte) (*Layer, error) {
	if err := checkException(body); err != nil {
		return nil, err
	}
	var caps wfsCapabilities
	if err := xml.Unmarshal(body, &caps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if caps.XMLName.Local != "WFS_Capabilities" {
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrInvalidDocument, caps.XMLName.Local)
	}

	root := &Layer{Title: strings.TrimSpace(caps.Title)}
	if root.Title == "" {
		root.Title = strings.TrimSpace(caps.ServiceTitle)
	}
	for _, ft := range caps.FeatureTypes {
		l := &Layer{
			Name:     strings.TrimSpace(ft.Name),
			Title:    strings.TrimSpace(ft.Title),
			Abstract: strings.TrimSpace(ft.Abstract),
		}
		if ft.WGS84BBox != nil {
			lower, okLower := parseCorner(ft.WGS84BBox.Lower)
			upper, okUpper := parseCorner(ft.WGS84BBox.Upper)
			if okLower && okUpper {
				l.BoundingBox = &orb.Bound{Min: lower, Max: upper}
			}
		}
		root.Layer = append(root.Layer, l)
	}
	return root, nil
}

func parseCorner(s string) (orb.Point, bool) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return orb.Point{}, false
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return orb.Point{}, false
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

type xsdElement struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type xsdSchema struct {
	XMLName         xml.Name
	TargetNamespace string `xml:"targetNamespace,attr"`
	ComplexTypes    []struct {
		Name     string       `xml:"name,attr"`
		Elements []xsdElement `xml:"complexContent>extension>sequence>element"`
	} `xml:"complexType"`
	Elements []xsdElement `xml:"element"`
}

// gmlGeometryTypes maps GML property types to simple geometry type names.
var gmlGeometryTypes = map[string]string{
	"PointPropertyType":           "Point",
	"LineStringPropertyType":      "LineString",
	"CurvePropertyType":           "LineString",
	"PolygonPropertyType":         "Polygon",
	"SurfacePropertyType":         "Polygon",
	"MultiPointPropertyType":      "MultiPoint",
	"MultiLineStringPropertyType": "MultiLineString",
	"MultiCurvePropertyType":      "MultiLineString",
	"MultiPolygonPropertyType":    "MultiPolygon",
	"MultiSurfacePropertyType":    "MultiPolygon",
	"GeometryPropertyType":        "Geometry",
}

// ParseFeatureType decodes a DescribeFeatureType XML schema.
func ParseFeatureType(body []byte, typeName string) (*FeatureTypeInfo, error) {
	if err := checkException(body); err != nil {
		return nil, err
	}
	var schema xsdSchema
	if err := xml.Unmarshal(body, &schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if schema.XMLName.Local != "schema" {
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrInvalidDocument, schema.XMLName.Local)
	}

	prefix, local := splitQName(typeName)
	info := &FeatureTypeInfo{
		FeatureNS:     schema.TargetNamespace,
		FeaturePrefix: prefix,
		FeatureType:   local,
		Attributes:    []Attribute{},
	}

	// The feature element names its complex type; fall back to the first one.
	complexName := local + "Type"
	for _, el := range schema.Elements {
		if el.Name == local {
			_, complexName = splitQName(el.Type)
		}
	}
	idx := -1
	for i, ct := range schema.ComplexTypes {
		if ct.Name == complexName {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(schema.ComplexTypes) == 0 {
			return nil, fmt.Errorf("%w: no complexType for %q", ErrInvalidDocument, typeName)
		}
		idx = 0
	}

	for _, el := range schema.ComplexTypes[idx].Elements {
		typePrefix, typeLocal := splitQName(el.Type)
		if geomType, ok := gmlGeometryTypes[typeLocal]; ok && (typePrefix == "gml" || typePrefix == "") {
			if info.GeometryName == "" {
				info.GeometryName = el.Name
				info.GeometryType = geomType
			}
			continue
		}
		info.Attributes = append(info.Attributes, Attribute{Name: el.Name, Type: typeLocal})
	}
	return info, nil
}

func splitQName(name string) (prefix, local string) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
