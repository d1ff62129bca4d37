package modal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
)

const popupAllAttributes = "#AllAttributes"

// Click adds the layer at path (e.g. "0-2-1") to the map and closes the
// dialog. A closed dialog adds nothing. The style and feature type lookups finish in the background and
// decorate the returned layer in place.
func (c *Controller) Click(path string) (*service.Layer, error) {
	st := c.State()
	c.mu.Lock()
	torn := c.torn
	c.mu.Unlock()
	if torn {
		return nil, ErrTornDown
	}
	if !st.Open {
		return nil, ErrClosed
	}
	if st.LayerInfo == nil {
		return nil, ErrNoTree
	}
	node, err := Lookup(st.LayerInfo, path)
	if err != nil {
		return nil, err
	}
	if !node.Selectable() {
		return nil, fmt.Errorf("%w: %s", ErrNotClickable, path)
	}

	serviceURL := c.URL()
	layer := c.buildLayer(node, serviceURL)

	c.lookupStyleName(layer, serviceURL, node.Name)
	c.lookupFeatureType(layer, serviceURL, node.Name)

	if err := c.place(layer); err != nil {
		return nil, fmt.Errorf("add layer %s: %w", node.Name, err)
	}
	c.logger.Info("layer added", "layer", node.Name, "kind", layer.Kind(), "type", layer.Type())
	c.Close()
	return layer, nil
}

// buildLayer creates the map layer for a capability node.
func (c *Controller) buildLayer(node *ogc.Layer, serviceURL string) *service.Layer {
	title, empty := layerTitle(node, c.deps.Localizer)
	st := service.LayerState{
		ID:         node.Name,
		Name:       node.Name,
		Title:      title,
		EmptyTitle: empty,
		Visible:    true,
		Removable:  true,
		Selectable: true,
		WFST:       true,
		TimeInfo:   timeInfo(node),
		PopupInfo:  popupAllAttributes,
	}
	if c.cfg.AsVector {
		st.Kind = service.KindVector
		st.Vector = source.NewVector(serviceURL, node.Name, c.cfg.SRSName)
		return service.NewLayer(st)
	}

	st.Kind = service.KindTile
	st.LegendURL = legendURL(node)
	st.BoundingBox = node.BoundingBox
	st.TileWMS = source.NewTileWMS(serviceURL, node.Name, node.IsGroup())
	if node.IsGroup() {
		st.Type = service.TypeBase
	}
	return service.NewLayer(st)
}

// lookupStyleName sets the default style when the REST lookup succeeds.
// Failures are ignored.
func (c *Controller) lookupStyleName(layer *service.Layer, serviceURL, name string) {
	if c.deps.Styles == nil {
		return
	}
	c.track(func(ctx context.Context) {
		styleName, err := c.deps.Styles.StyleName(ctx, serviceURL, name)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug("style lookup failed", "layer", name, "error", err)
			return
		}
		layer.SetStyleName(styleName)
	})
}

// lookupFeatureType attaches the WFS schema. On failure the layer can no
// longer be selected and the dialog is closed.
func (c *Controller) lookupFeatureType(layer *service.Layer, serviceURL, name string) {
	if c.deps.FeatureTypes == nil {
		return
	}
	c.track(func(ctx context.Context) {
		info, err := c.deps.FeatureTypes.DescribeFeatureType(ctx, serviceURL, name)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			c.logger.Warn("feature type lookup failed", "layer", name, "error", err)
			layer.SetSelectable(false)
			layer.SetWFSInfo(nil)
			c.Close()
			return
		}
		layer.SetWFSInfo(info)
		c.Close()
	})
}

// place inserts a base layer into the first base group, hiding the group's
// other layers. Everything else goes to the top level.
func (c *Controller) place(layer *service.Layer) error {
	if layer.Type() == service.TypeBase {
		for _, top := range c.deps.Host.Layers() {
			if top.Type() != service.TypeBaseGroup {
				continue
			}
			for _, child := range top.Children() {
				child.SetVisible(false)
			}
			top.AppendChild(layer)
			return nil
		}
	}
	return c.deps.Host.AddLayer(layer)
}

// layerTitle returns the node title, or the placeholder and true when the
// title is empty.
func layerTitle(node *ogc.Layer, loc i18n.Localizer) (string, bool) {
	if node.Title == "" {
		return loc.Format(i18n.MsgNoLayerTitle, nil), true
	}
	return node.Title, false
}

// timeInfo returns the values of the first dimension named time.
func timeInfo(node *ogc.Layer) string {
	for _, d := range node.Dimension {
		if d.Name == "time" {
			return d.Values
		}
	}
	return ""
}

// legendURL returns the first legend of the only style.
func legendURL(node *ogc.Layer) string {
	if len(node.Style) != 1 || len(node.Style[0].LegendURL) == 0 {
		return ""
	}
	return node.Style[0].LegendURL[0].OnlineResource
}

// Lookup resolves a dash separated index path. "0" is the root.
func Lookup(root *ogc.Layer, path string) (*ogc.Layer, error) {
	parts := strings.Split(path, "-")
	if root == nil || len(parts) == 0 || parts[0] != "0" {
		return nil, fmt.Errorf("invalid layer path %q", path)
	}
	node := root
	for _, p := range parts[1:] {
		i, err := strconv.Atoi(p)
		if err != nil || i < 0 || i >= len(node.Layer) {
			return nil, fmt.Errorf("invalid layer path %q", path)
		}
		node = node.Layer[i]
	}
	return node, nil
}
