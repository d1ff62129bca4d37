package modal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
)

type fakeCaps struct {
	mu      sync.Mutex
	urls    []string
	respond func(ctx context.Context, url string) (*ogc.Layer, error)
}

func (f *fakeCaps) GetCapabilities(ctx context.Context, url string) (*ogc.Layer, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return f.respond(ctx, url)
}

func (f *fakeCaps) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func returning(tree *ogc.Layer, err error) *fakeCaps {
	return &fakeCaps{respond: func(context.Context, string) (*ogc.Layer, error) { return tree, err }}
}

type fakeStyles struct {
	name string
	err  error
}

func (f fakeStyles) StyleName(context.Context, string, string) (string, error) {
	return f.name, f.err
}

type fakeFeatureTypes struct {
	release chan struct{}
	info    *ogc.FeatureTypeInfo
	err     error
}

func (f fakeFeatureTypes) DescribeFeatureType(ctx context.Context, url, typeName string) (*ogc.FeatureTypeInfo, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.info, f.err
}

func newController(t *testing.T, cfg Config, caps *fakeCaps, host *service.MapService) *Controller {
	t.Helper()
	if host == nil {
		host = service.NewMapService("", service.NewEventBus(), nil)
	}
	c := New(cfg, Deps{
		WMS:          caps,
		WFS:          caps,
		Styles:       fakeStyles{name: "polygon"},
		FeatureTypes: fakeFeatureTypes{info: &ogc.FeatureTypeInfo{FeatureType: "roads"}},
		Host:         host,
		Localizer:    i18n.New("en"),
	}, nil)
	t.Cleanup(func() {
		c.Teardown()
		c.Wait()
	})
	return c
}

func roadsTree() *ogc.Layer {
	return &ogc.Layer{Layer: []*ogc.Layer{{Name: "roads", Title: "Roads"}}}
}

func TestOpen_FetchesConfiguredURL(t *testing.T) {
	caps := returning(roadsTree(), nil)
	c := newController(t, Config{URL: "http://example.com/wms"}, caps, nil)

	c.Open(context.Background())
	c.Wait()

	assert.Equal(t, []string{"http://example.com/wms"}, caps.requested())
	st := c.State()
	assert.True(t, st.Open)
	assert.False(t, st.Loading)
	require.NotNil(t, st.LayerInfo)
}

func TestScenario_RoadsAddsTileLayerAndCloses(t *testing.T) {
	host := service.NewMapService("", service.NewEventBus(), nil)
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(roadsTree(), nil), host)

	c.Open(context.Background())
	c.Wait()

	clickable := clickableItems(c.View(nil).Items)
	require.Len(t, clickable, 1)
	assert.Equal(t, "Roads", clickable[0].Primary)
	assert.Equal(t, IconLayer, clickable[0].Icon)

	layer, err := c.Click(clickable[0].Path)
	require.NoError(t, err)
	c.Wait()

	assert.False(t, c.State().Open)
	snap := host.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "roads", snap[0].Name)
	assert.Equal(t, service.KindTile, snap[0].Kind)
	require.NotNil(t, snap[0].TileWMS)
	assert.Equal(t, "roads", snap[0].TileWMS.Params["LAYERS"])
	assert.Equal(t, "polygon", layer.Snapshot().StyleName)
	assert.Equal(t, "roads", layer.Snapshot().WFSInfo.FeatureType)
}

func TestView_GroupsOnlyAreNotClickable(t *testing.T) {
	tree := &ogc.Layer{Title: "root", Layer: []*ogc.Layer{
		{Title: "a", Layer: []*ogc.Layer{{Title: "a1", Layer: []*ogc.Layer{{Title: "deep"}}}}},
		{Title: "b", Layer: []*ogc.Layer{{Title: "b1", Layer: []*ogc.Layer{{Title: "x"}}}}},
	}}
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(tree, nil), nil)
	c.Open(context.Background())
	c.Wait()

	for _, it := range Flatten(c.View(nil).Items) {
		assert.False(t, it.Clickable, it.Path)
		if len(it.Nested) > 0 {
			assert.Equal(t, IconFolder, it.Icon, it.Path)
		}
		assert.True(t, it.InitiallyOpen)
	}
	_, err := c.Click("0-0")
	assert.ErrorIs(t, err, ErrNotClickable)
}

func TestView_EmptyTitleUsesPlaceholder(t *testing.T) {
	tree := &ogc.Layer{Title: "root", Layer: []*ogc.Layer{
		{Name: "untitled", Title: ""},
		{Name: "titled", Title: "Titled"},
	}}
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(tree, nil), nil)
	c.Open(context.Background())
	c.Wait()

	items := c.View(nil).Items[0].Nested
	require.Len(t, items, 2)
	assert.Equal(t, "No Title", items[0].Primary)
	assert.True(t, items[0].EmptyTitle)
	assert.Equal(t, "untitled", items[0].Secondary)
	assert.Equal(t, "Titled", items[1].Primary)
	assert.False(t, items[1].EmptyTitle)

	nl := c.View(i18n.New("nl")).Items[0].Nested
	assert.Equal(t, "Geen titel", nl[0].Primary)

	layer, err := c.Click("0-0")
	require.NoError(t, err)
	assert.Equal(t, "No Title", layer.Snapshot().Title)
	assert.True(t, layer.Snapshot().EmptyTitle)
}

func TestBuildLayer_LegendURL(t *testing.T) {
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(nil, nil), nil)
	legend := []ogc.LegendURL{{OnlineResource: "http://example.com/legend.png"}}

	tests := []struct {
		name   string
		styles []ogc.Style
		want   string
	}{
		{"one style one legend", []ogc.Style{{Name: "s", LegendURL: legend}}, "http://example.com/legend.png"},
		{"no styles", nil, ""},
		{"two styles", []ogc.Style{{LegendURL: legend}, {LegendURL: legend}}, ""},
		{"style without legend", []ogc.Style{{Name: "s"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := c.buildLayer(&ogc.Layer{Name: "l", Title: "L", Style: tt.styles}, "http://example.com/wms")
			assert.Equal(t, tt.want, layer.Snapshot().LegendURL)
		})
	}
}

func TestBuildLayer_TimeInfo(t *testing.T) {
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(nil, nil), nil)

	withTime := &ogc.Layer{Name: "l", Dimension: []ogc.Dimension{
		{Name: "elevation", Values: "0,100"},
		{Name: "time", Values: "2020-01-01/2020-12-31/P1D"},
		{Name: "time", Values: "ignored"},
	}}
	assert.Equal(t, "2020-01-01/2020-12-31/P1D", c.buildLayer(withTime, "").Snapshot().TimeInfo)

	without := &ogc.Layer{Name: "l", Dimension: []ogc.Dimension{{Name: "elevation", Values: "0"}}}
	assert.Empty(t, c.buildLayer(without, "").Snapshot().TimeInfo)
}

func TestBuildLayer_Vector(t *testing.T) {
	caps := returning(roadsTree(), nil)
	c := newController(t, Config{URL: "http://example.com/geoserver/wms", AsVector: true, SRSName: "EPSG:4326"}, caps, nil)

	node := &ogc.Layer{Name: "topp:roads", Title: "Roads", Style: []ogc.Style{{LegendURL: []ogc.LegendURL{{OnlineResource: "x"}}}}}
	st := c.buildLayer(node, "http://example.com/geoserver/wms").Snapshot()
	assert.Equal(t, service.KindVector, st.Kind)
	assert.Empty(t, st.LegendURL)
	assert.Empty(t, st.Type)
	assert.True(t, st.WFST)
	assert.Equal(t, "#AllAttributes", st.PopupInfo)
	require.NotNil(t, st.Vector)
	assert.Equal(t, "topp:roads", st.Vector.TypeName)
	assert.Equal(t, "EPSG:4326", st.Vector.Projection)

	assert.Equal(t, "Add Layer from OGC:WFS", c.View(nil).Title)
}

func TestClick_BasePlacement(t *testing.T) {
	baseTree := &ogc.Layer{Title: "root", Layer: []*ogc.Layer{
		{Name: "basemap", Title: "Basemap", Layer: []*ogc.Layer{{Name: "streets", Title: "Streets"}}},
	}}

	t.Run("into first base group", func(t *testing.T) {
		host := service.NewMapService("", service.NewEventBus(), nil)
		require.NoError(t, host.AddLayer(service.NewGroup("overlays", "Overlays", "")))
		first, err := host.EnsureGroup(service.GroupConfig{ID: "bg1", Type: service.TypeBaseGroup})
		require.NoError(t, err)
		second, err := host.EnsureGroup(service.GroupConfig{ID: "bg2", Type: service.TypeBaseGroup})
		require.NoError(t, err)
		osm := service.NewLayer(service.LayerState{ID: "osm", Kind: service.KindTile, Visible: true})
		first.AppendChild(osm)

		c := newController(t, Config{URL: "http://example.com/wms"}, returning(baseTree, nil), host)
		c.Open(context.Background())
		c.Wait()

		layer, err := c.Click("0-0")
		require.NoError(t, err)
		assert.Equal(t, service.TypeBase, layer.Type())
		assert.True(t, layer.Snapshot().TileWMS.WrapX)

		children := first.Children()
		require.Len(t, children, 2)
		assert.False(t, children[0].Visible())
		assert.Same(t, layer, children[1])
		assert.True(t, children[1].Visible())
		assert.Empty(t, second.Children())
		assert.Len(t, host.Layers(), 3)
	})

	t.Run("top level without base group", func(t *testing.T) {
		host := service.NewMapService("", service.NewEventBus(), nil)
		c := newController(t, Config{URL: "http://example.com/wms"}, returning(baseTree, nil), host)
		c.Open(context.Background())
		c.Wait()

		layer, err := c.Click("0-0")
		require.NoError(t, err)
		layers := host.Layers()
		require.Len(t, layers, 1)
		assert.Same(t, layer, layers[0])
	})

	t.Run("non base layer ignores base group", func(t *testing.T) {
		host := service.NewMapService("", service.NewEventBus(), nil)
		group, err := host.EnsureGroup(service.GroupConfig{ID: "bg", Type: service.TypeBaseGroup})
		require.NoError(t, err)
		c := newController(t, Config{URL: "http://example.com/wms"}, returning(baseTree, nil), host)
		c.Open(context.Background())
		c.Wait()

		_, err = c.Click("0-0-0")
		require.NoError(t, err)
		assert.Empty(t, group.Children())
		assert.Len(t, host.Layers(), 2)
	})
}

func TestFetch_ErrorMessages(t *testing.T) {
	t.Run("status present", func(t *testing.T) {
		c := newController(t, Config{URL: "http://example.com/wms"},
			returning(nil, &ogc.HTTPError{StatusCode: 503, Status: "Service Unavailable"}), nil)
		c.Open(context.Background())
		c.Wait()

		v := c.View(nil)
		require.NotNil(t, v.Error)
		assert.True(t, v.Error.Open)
		assert.Equal(t, "Error. 503 Service Unavailable", v.Error.Message)
		assert.Nil(t, v.Items)
	})

	t.Run("no status", func(t *testing.T) {
		c := newController(t, Config{URL: "http://example.com/wms"},
			returning(nil, errors.New("dial tcp: connection refused")), nil)
		c.Open(context.Background())
		c.Wait()

		v := c.View(nil)
		require.NotNil(t, v.Error)
		assert.Contains(t, v.Error.Message, "Could not connect to GeoServer")
	})

	t.Run("undecodable document", func(t *testing.T) {
		c := newController(t, Config{URL: "http://example.com/wms"},
			returning(nil, &ogc.ServiceException{Code: "InvalidFormat", Message: "bad request"}), nil)
		c.Open(context.Background())
		c.Wait()

		assert.Contains(t, c.View(nil).Error.Message, "bad request")
	})
}

func TestDismissError_KeepsErrorFlag(t *testing.T) {
	c := newController(t, Config{URL: "http://example.com/wms"},
		returning(nil, &ogc.HTTPError{StatusCode: 500, Status: "Internal Server Error"}), nil)
	c.Open(context.Background())
	c.Wait()

	c.DismissError()
	st := c.State()
	assert.True(t, st.Error)
	assert.False(t, st.ErrorOpen)
	require.NotNil(t, st.Failure)
	assert.Equal(t, 500, st.Failure.StatusCode)
	assert.False(t, c.View(nil).Error.Open)
}

func TestConnect_SuccessClearsError(t *testing.T) {
	caps := &fakeCaps{respond: func(_ context.Context, url string) (*ogc.Layer, error) {
		if url == "http://bad.example.com/wms" {
			return nil, &ogc.HTTPError{StatusCode: 404, Status: "Not Found"}
		}
		return roadsTree(), nil
	}}
	c := newController(t, Config{URL: "http://bad.example.com/wms", AllowUserInput: true}, caps, nil)
	c.Open(context.Background())
	c.Wait()
	require.True(t, c.State().Error)

	c.SetInput("http://good.example.com/wms")
	c.Connect(context.Background())
	c.Wait()

	st := c.State()
	assert.False(t, st.Error)
	assert.False(t, st.ErrorOpen)
	assert.Nil(t, st.Failure)
	assert.NotNil(t, st.LayerInfo)
	assert.Equal(t, []string{"http://bad.example.com/wms", "http://good.example.com/wms"}, caps.requested())

	v := c.View(nil)
	require.NotNil(t, v.Input)
	assert.Equal(t, "WMS URL", v.Input.Label)
	assert.Equal(t, "http://good.example.com/wms", v.Input.Value)
}

func TestFetch_NewRequestSupersedesInFlight(t *testing.T) {
	slowCanceled := make(chan struct{})
	caps := &fakeCaps{respond: func(ctx context.Context, url string) (*ogc.Layer, error) {
		if url == "http://slow.example.com/wms" {
			<-ctx.Done()
			close(slowCanceled)
			return &ogc.Layer{Title: "stale"}, nil
		}
		return &ogc.Layer{Title: "fresh"}, nil
	}}
	c := newController(t, Config{URL: "http://slow.example.com/wms", AllowUserInput: true}, caps, nil)

	c.Open(context.Background())
	c.SetInput("http://fast.example.com/wms")
	c.Connect(context.Background())

	select {
	case <-slowCanceled:
	case <-time.After(time.Second):
		t.Fatal("superseded request was not canceled")
	}
	c.Wait()
	assert.Equal(t, "fresh", c.State().LayerInfo.Title)
}

func TestTeardown_CancelsRequestAndDropsResponse(t *testing.T) {
	started := make(chan struct{})
	caps := &fakeCaps{respond: func(ctx context.Context, _ string) (*ogc.Layer, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newController(t, Config{URL: "http://example.com/wms"}, caps, nil)
	updates, _ := c.Subscribe()

	c.Open(context.Background())
	<-started
	c.Teardown()
	c.Wait()

	st := c.State()
	assert.False(t, st.Error)
	assert.True(t, st.Loading)

	for range updates {
	}
	_, err := c.Click("0")
	assert.ErrorIs(t, err, ErrTornDown)
}

func TestClick_FeatureTypeFailureDemotesLayerAndCloses(t *testing.T) {
	release := make(chan struct{})
	host := service.NewMapService("", service.NewEventBus(), nil)
	c := New(Config{URL: "http://example.com/wms"}, Deps{
		WMS:          returning(roadsTree(), nil),
		Styles:       fakeStyles{err: errors.New("404 Not Found")},
		FeatureTypes: fakeFeatureTypes{release: release, err: &ogc.HTTPError{StatusCode: 400, Status: "Bad Request"}},
		Host:         host,
	}, nil)
	defer c.Teardown()

	c.Open(context.Background())
	c.Wait()

	layer, err := c.Click("0-0")
	require.NoError(t, err)
	assert.False(t, c.State().Open)

	// Reopen before the lookup settles; its failure closes the dialog again.
	c.mutate(func(s *State) { s.Open = true })
	close(release)
	c.Wait()

	st := layer.Snapshot()
	assert.False(t, st.Selectable)
	assert.Nil(t, st.WFSInfo)
	assert.Empty(t, st.StyleName)
	assert.False(t, c.State().Open)
}

func TestTeardown_CanceledLookupDoesNotDecorate(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{URL: "http://example.com/wms"}, Deps{
		WMS:          returning(roadsTree(), nil),
		FeatureTypes: fakeFeatureTypes{release: release, err: errors.New("unreachable")},
		Host:         service.NewMapService("", service.NewEventBus(), nil),
	}, nil)

	c.Open(context.Background())
	c.Wait()
	layer, err := c.Click("0-0")
	require.NoError(t, err)

	c.Teardown()
	c.Wait()
	assert.True(t, layer.Snapshot().Selectable)
}

func TestPure_CachesByVersionAndLocale(t *testing.T) {
	calls := 0
	render := Pure(func(s State, loc i18n.Localizer) View {
		calls++
		return View{Title: loc.Tag().String()}
	})
	en, nl := i18n.New("en"), i18n.New("nl")

	render(State{Version: 1}, en)
	render(State{Version: 1}, en)
	assert.Equal(t, 1, calls)

	render(State{Version: 1}, nl)
	assert.Equal(t, 2, calls)

	render(State{Version: 2}, nl)
	assert.Equal(t, 3, calls)

	v := Localized(render, en)(State{Version: 2})
	assert.Equal(t, "en", v.Title)
}

func TestView_ThemeAndLabels(t *testing.T) {
	c := newController(t, Config{URL: "http://example.com/wms", ClassName: "wide"}, returning(nil, nil), nil)
	v := c.View(nil)
	assert.Equal(t, "sdk-component add-layer-modal wide", v.ClassName)
	assert.Equal(t, "Add Layer from OGC:WMS", v.Title)
	assert.Equal(t, "Close", v.CloseLabel)
	assert.Nil(t, v.Input)
	assert.False(t, v.Open)
}

func TestSubscribe_Notifies(t *testing.T) {
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(roadsTree(), nil), nil)
	updates, unsubscribe := c.Subscribe()

	c.DismissError()
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok)
	unsubscribe()
}

func TestLookup(t *testing.T) {
	tree := &ogc.Layer{Layer: []*ogc.Layer{{Name: "a", Layer: []*ogc.Layer{{Name: "b"}}}}}

	node, err := Lookup(tree, "0-0-0")
	require.NoError(t, err)
	assert.Equal(t, "b", node.Name)

	for _, bad := range []string{"", "1", "0-1", "0-x", "0-0-0-0"} {
		_, err := Lookup(tree, bad)
		assert.Error(t, err, bad)
	}
}

func clickableItems(items []Item) []Item {
	var out []Item
	for _, it := range Flatten(items) {
		if it.Clickable {
			out = append(out, it)
		}
	}
	return out
}

func TestClick_ClosedDialogAddsNothing(t *testing.T) {
	host := service.NewMapService("", service.NewEventBus(), nil)
	tree := &ogc.Layer{Layer: []*ogc.Layer{
		{Name: "basemaps", Title: "Basemaps", Layer: []*ogc.Layer{{Name: "osm", Title: "OSM"}}},
	}}
	c := newController(t, Config{URL: "http://example.com/wms"}, returning(tree, nil), host)
	c.Open(context.Background())
	c.Wait()

	var icons []Icon
	for _, it := range Flatten(c.View(nil).Items) {
		icons = append(icons, it.Icon)
	}
	assert.Equal(t, []Icon{IconFolder, IconFolder, IconLayer}, icons)

	layer, err := c.Click("0-0-0")
	require.NoError(t, err)
	assert.Equal(t, "osm", layer.ID())

	// A click on the enclosing group after the dialog closed.
	_, err = c.Click("0-0")
	assert.ErrorIs(t, err, ErrClosed)

	layers := host.Layers()
	require.Len(t, layers, 1)
	assert.Equal(t, "osm", layers[0].ID())
}

func TestFetch_ServiceFollowsVectorFlag(t *testing.T) {
	tests := []struct {
		name     string
		asVector bool
		wantWFS  bool
	}{
		{name: "raster uses WMS", asVector: false, wantWFS: false},
		{name: "vector uses WFS", asVector: true, wantWFS: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wms := returning(roadsTree(), nil)
			wfs := returning(roadsTree(), nil)
			c := New(Config{URL: "http://example.com/geoserver/wms", AsVector: tt.asVector}, Deps{
				WMS:  wms,
				WFS:  wfs,
				Host: service.NewMapService("", service.NewEventBus(), nil),
			}, nil)
			t.Cleanup(func() {
				c.Teardown()
				c.Wait()
			})

			c.Open(context.Background())
			c.Wait()

			want := []string{"http://example.com/geoserver/wms"}
			if tt.wantWFS {
				assert.Equal(t, want, wfs.requested())
				assert.Empty(t, wms.requested())
			} else {
				assert.Equal(t, want, wms.requested())
				assert.Empty(t, wfs.requested())
			}
		})
	}
}

func TestTeardown_NoWorkStartsAfterWait(t *testing.T) {
	for i := 0; i < 50; i++ {
		caps := returning(roadsTree(), nil)
		c := New(Config{URL: "http://example.com/wms"}, Deps{
			WMS:  caps,
			Host: service.NewMapService("", service.NewEventBus(), nil),
		}, nil)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Connect(context.Background())
			}
		}()

		c.Teardown()
		c.Wait()
		settled := len(caps.requested())

		wg.Wait()
		c.Wait()
		require.Equal(t, settled, len(caps.requested()), "request started after teardown")
	}
}
