package ogc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wmsCaps = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms" xmlns:xlink="http://www.w3.org/1999/xlink">
  <Service><Name>WMS</Name><Title>GeoServer Web Map Service</Title></Service>
  <Capability>
    <Layer>
      <Title>GeoServer Web Map Service</Title>
      <Layer queryable="1">
        <Name>topp:states</Name>
        <Title>USA Population</Title>
        <EX_GeographicBoundingBox>
          <westBoundLongitude>-124.73</westBoundLongitude>
          <eastBoundLongitude>-66.97</eastBoundLongitude>
          <southBoundLatitude>24.96</southBoundLatitude>
          <northBoundLatitude>49.37</northBoundLatitude>
        </EX_GeographicBoundingBox>
        <Dimension name="time" units="ISO8601" default="2020-01-01">2020-01-01/2020-12-31/P1D</Dimension>
        <Style>
          <Name>population</Name>
          <LegendURL width="20" height="20">
            <Format>image/png</Format>
            <OnlineResource xlink:type="simple" xlink:href="http://example.com/legend.png"/>
          </LegendURL>
        </Style>
      </Layer>
      <Layer>
        <Title>Base maps</Title>
        <Layer><Name>osm</Name><Title></Title></Layer>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

const wfsCaps = `<?xml version="1.0" encoding="UTF-8"?>
<wfs:WFS_Capabilities version="1.1.0" xmlns:wfs="http://www.opengis.net/wfs" xmlns:ows="http://www.opengis.net/ows">
  <ows:ServiceIdentification><ows:Title>GeoServer WFS</ows:Title></ows:ServiceIdentification>
  <FeatureTypeList>
    <FeatureType>
      <Name>topp:states</Name>
      <Title>USA Population</Title>
      <ows:WGS84BoundingBox>
        <ows:LowerCorner>-124.73 24.96</ows:LowerCorner>
        <ows:UpperCorner>-66.97 49.37</ows:UpperCorner>
      </ows:WGS84BoundingBox>
    </FeatureType>
    <FeatureType><Name>topp:roads</Name><Title>Roads</Title></FeatureType>
  </FeatureTypeList>
</wfs:WFS_Capabilities>`

const statesSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xsd:schema xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:gml="http://www.opengis.net/gml" xmlns:topp="http://www.openplans.org/topp" targetNamespace="http://www.openplans.org/topp">
  <xsd:complexType name="statesType">
    <xsd:complexContent>
      <xsd:extension base="gml:AbstractFeatureType">
        <xsd:sequence>
          <xsd:element name="the_geom" type="gml:MultiSurfacePropertyType"/>
          <xsd:element name="STATE_NAME" type="xsd:string"/>
          <xsd:element name="PERSONS" type="xsd:double"/>
        </xsd:sequence>
      </xsd:extension>
    </xsd:complexContent>
  </xsd:complexType>
  <xsd:element name="states" substitutionGroup="gml:_Feature" type="topp:statesType"/>
</xsd:schema>`

func TestParseWMSCapabilities(t *testing.T) {
	root, err := ParseWMSCapabilities([]byte(wmsCaps))
	require.NoError(t, err)

	assert.Equal(t, "GeoServer Web Map Service", root.Title)
	assert.Empty(t, root.Name)
	require.Len(t, root.Layer, 2)
	assert.True(t, root.IsGroup())

	states := root.Layer[0]
	assert.Equal(t, "topp:states", states.Name)
	assert.False(t, states.IsGroup())
	assert.True(t, states.Selectable())
	require.NotNil(t, states.BoundingBox)
	assert.InDelta(t, -124.73, states.BoundingBox.Min[0], 1e-9)
	assert.InDelta(t, 49.37, states.BoundingBox.Max[1], 1e-9)
	require.Len(t, states.Dimension, 1)
	assert.Equal(t, "time", states.Dimension[0].Name)
	assert.Equal(t, "2020-01-01/2020-12-31/P1D", states.Dimension[0].Values)
	require.Len(t, states.Style, 1)
	require.Len(t, states.Style[0].LegendURL, 1)
	assert.Equal(t, "http://example.com/legend.png", states.Style[0].LegendURL[0].OnlineResource)

	base := root.Layer[1]
	assert.True(t, base.IsGroup())
	assert.False(t, base.Selectable())
	assert.Equal(t, "osm", base.Layer[0].Name)
	assert.Equal(t, "", base.Layer[0].Title)
}

func TestParseWMSCapabilities_Invalid(t *testing.T) {
	_, err := ParseWMSCapabilities([]byte(`<html><body>nope</body></html>`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ParseWMSCapabilities([]byte(`not xml at all`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestParseWMSCapabilities_ServiceException(t *testing.T) {
	body := `<?xml version="1.0"?>
<ServiceExceptionReport version="1.3.0"><ServiceException code="LayerNotDefined">unknown layer</ServiceException></ServiceExceptionReport>`
	_, err := ParseWMSCapabilities([]byte(body))

	var exc *ServiceException
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "LayerNotDefined", exc.Code)
	assert.Equal(t, "unknown layer", exc.Message)
}

func TestParseWFSCapabilities(t *testing.T) {
	root, err := ParseWFSCapabilities([]byte(wfsCaps))
	require.NoError(t, err)

	assert.Equal(t, "GeoServer WFS", root.Title)
	require.Len(t, root.Layer, 2)
	assert.Equal(t, "topp:states", root.Layer[0].Name)
	require.NotNil(t, root.Layer[0].BoundingBox)
	assert.InDelta(t, 24.96, root.Layer[0].BoundingBox.Min[1], 1e-9)
	assert.Nil(t, root.Layer[1].BoundingBox)
}

func TestParseFeatureType(t *testing.T) {
	info, err := ParseFeatureType([]byte(statesSchema), "topp:states")
	require.NoError(t, err)

	assert.Equal(t, "http://www.openplans.org/topp", info.FeatureNS)
	assert.Equal(t, "topp", info.FeaturePrefix)
	assert.Equal(t, "states", info.FeatureType)
	assert.Equal(t, "the_geom", info.GeometryName)
	assert.Equal(t, "MultiPolygon", info.GeometryType)
	assert.Equal(t, []Attribute{
		{Name: "STATE_NAME", Type: "string"},
		{Name: "PERSONS", Type: "double"},
	}, info.Attributes)
}

func TestWMSService_GetCapabilities(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(wmsCaps))
	}))
	defer srv.Close()

	svc := &WMSService{Client: NewClient(0)}
	root, err := svc.GetCapabilities(context.Background(), srv.URL+"/geoserver/wms?service=wms&map=x")
	require.NoError(t, err)
	assert.Len(t, root.Layer, 2)

	assert.Contains(t, gotQuery, "REQUEST=GetCapabilities")
	assert.Contains(t, gotQuery, "SERVICE=WMS")
	assert.Contains(t, gotQuery, "map=x")
	assert.NotContains(t, gotQuery, "service=wms")
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := &WMSService{Client: NewClient(0)}
	_, err := svc.GetCapabilities(context.Background(), srv.URL)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Equal(t, "Internal Server Error", httpErr.Status)
	assert.Equal(t, "500 Internal Server Error", err.Error())
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := &WMSService{Client: NewClient(0)}
	_, err := svc.GetCapabilities(context.Background(), url)
	require.Error(t, err)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestClient_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &WFSService{Client: NewClient(0)}
	_, err := svc.GetCapabilities(ctx, "http://127.0.0.1:1/wfs")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWFSService_DescribeFeatureType(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.URL.Query().Get("TYPENAME")
		w.Write([]byte(statesSchema))
	}))
	defer srv.Close()

	svc := &WFSService{Client: NewClient(0)}
	info, err := svc.DescribeFeatureType(context.Background(), srv.URL+"/geoserver/wms", "topp:states")
	require.NoError(t, err)

	assert.Equal(t, "/geoserver/wfs", gotPath)
	assert.Equal(t, "topp:states", gotType)
	assert.True(t, strings.HasSuffix(info.URL, "/geoserver/wfs"))
	assert.Equal(t, "MultiPolygon", info.GeometryType)
}

func TestRESTURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://example.com/geoserver/wms", "http://example.com/geoserver/rest"},
		{"http://example.com/geoserver/ows?service=WMS", "http://example.com/geoserver/rest"},
		{"http://example.com/geoserver/", "http://example.com/geoserver/rest"},
		{"http://example.com/wms", "http://example.com/rest"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := RESTURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRESTService_StyleName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geoserver/rest/layers/topp:states.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"layer":{"name":"states","defaultStyle":{"name":"population"}}}`))
	}))
	defer srv.Close()

	svc := &RESTService{Client: NewClient(0)}
	name, err := svc.StyleName(context.Background(), srv.URL+"/geoserver/wms", "topp:states")
	require.NoError(t, err)
	assert.Equal(t, "population", name)

	_, err = svc.StyleName(context.Background(), srv.URL+"/geoserver/wms", "missing")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}
