// Package gateway maps dashboard tabs and widgets onto document store paths.
//
// Layout:
//
//	users/{uid}/tabs/{tabId}
//	users/{uid}/tabs/{tabId}/widgets/{widgetId}
//
// The gateway only translates shapes. It does not validate input.
package gateway

import (
	"context"

	"github.com/pkg/errors"

	"hud-backend/pkg/docstore"
	"hud-backend/pkg/models"
)

const (
	usersCollection   = "users"
	tabsCollection    = "tabs"
	widgetsCollection = "widgets"

	orderField = "order"
)

// Gateway persists tabs and widgets for many users in one Store.
type Gateway struct {
	store docstore.Store
}

// New returns a Gateway backed by store.
func New(store docstore.Store) *Gateway {
	return &Gateway{store: store}
}

// TabsPath is the collection holding uid's tabs.
func TabsPath(uid string) string {
	return docstore.JoinPath(usersCollection, uid, tabsCollection)
}

// TabPath is the document path of one tab.
func TabPath(uid, tabID string) string {
	return docstore.JoinPath(TabsPath(uid), tabID)
}

// WidgetsPath is the collection holding a tab's widgets.
func WidgetsPath(uid, tabID string) string {
	return docstore.JoinPath(TabPath(uid, tabID), widgetsCollection)
}

// WidgetPath is the document path of one widget.
func WidgetPath(uid, tabID, widgetID string) string {
	return docstore.JoinPath(WidgetsPath(uid, tabID), widgetID)
}

// TabFields is a partial tab write. Nil members are not written.
type TabFields struct {
	Label *string
	Icon  *string
	Order *int
}

func (f TabFields) fields() docstore.Fields {
	out := docstore.Fields{}
	if f.Label != nil {
		out["label"] = *f.Label
	}
	if f.Icon != nil {
		out["icon"] = *f.Icon
	}
	if f.Order != nil {
		out[orderField] = *f.Order
	}
	return out
}

// WidgetFields is a partial widget write. Nil members are not written.
type WidgetFields struct {
	Type         *string
	Name         *string
	URL          *string
	Color        *string
	IconURL      *string
	GridPosition *models.GridPosition
}

func (f WidgetFields) fields() docstore.Fields {
	out := docstore.Fields{}
	if f.Type != nil {
		out["type"] = *f.Type
	}
	if f.Name != nil {
		out["name"] = *f.Name
	}
	if f.URL != nil {
		out["data"] = map[string]interface{}{"url": *f.URL}
	}
	if f.Color != nil {
		out["color"] = *f.Color
	}
	if f.IconURL != nil {
		out["iconUrl"] = *f.IconURL
	}
	if g := f.GridPosition; g != nil {
		out["gridPosition"] = map[string]interface{}{"x": g.X, "y": g.Y, "w": g.W, "h": g.H}
	}
	return out
}

// ListTabs returns uid's tabs ascending by order.
func (g *Gateway) ListTabs(ctx context.Context, uid string) ([]models.Tab, error) {
	docs, err := g.store.Query(ctx, TabsPath(uid), orderField)
	if err != nil {
		return nil, errors.Wrap(err, "list tabs")
	}
	tabs := make([]models.Tab, 0, len(docs))
	for _, d := range docs {
		var t models.Tab
		if err := d.Decode(&t); err != nil {
			return nil, err
		}
		tabs = append(tabs, t)
	}
	return tabs, nil
}

// CreateTab stores a new tab and returns it as stored.
func (g *Gateway) CreateTab(ctx context.Context, uid, label, icon string, order int) (models.Tab, error) {
	fields := TabFields{Label: &label, Order: &order}
	if icon != "" {
		fields.Icon = &icon
	}
	id, err := g.store.Create(ctx, TabsPath(uid), fields.fields())
	if err != nil {
		return models.Tab{}, errors.Wrap(err, "create tab")
	}
	return g.GetTab(ctx, uid, id)
}

// GetTab reads one tab.
func (g *Gateway) GetTab(ctx context.Context, uid, tabID string) (models.Tab, error) {
	doc, err := g.store.Get(ctx, TabPath(uid, tabID))
	if err != nil {
		return models.Tab{}, errors.Wrap(err, "get tab")
	}
	var t models.Tab
	if err := doc.Decode(&t); err != nil {
		return models.Tab{}, err
	}
	return t, nil
}

// UpdateTab merges the set members of fields into the stored tab.
func (g *Gateway) UpdateTab(ctx context.Context, uid, tabID string, fields TabFields) error {
	if err := g.store.Update(ctx, TabPath(uid, tabID), fields.fields()); err != nil {
		return errors.Wrap(err, "update tab")
	}
	return nil
}

// TabOrder assigns an order value to one tab.
type TabOrder struct {
	ID    string
	Order int
}

// UpdateTabOrders rewrites the order of every listed tab in one atomic batch.
func (g *Gateway) UpdateTabOrders(ctx context.Context, uid string, orders []TabOrder) error {
	ops := make([]docstore.Op, 0, len(orders))
	for _, o := range orders {
		ops = append(ops, docstore.UpdateOp(TabPath(uid, o.ID), docstore.Fields{orderField: o.Order}))
	}
	if err := g.store.Batch(ctx, ops); err != nil {
		return errors.Wrap(err, "update tab order")
	}
	return nil
}

// DeleteTab removes a tab and all of its widgets in one atomic batch.
func (g *Gateway) DeleteTab(ctx context.Context, uid, tabID string) error {
	widgets, err := g.store.Query(ctx, WidgetsPath(uid, tabID), docstore.FieldCreatedAt)
	if err != nil {
		return errors.Wrap(err, "list widgets for delete")
	}
	ops := make([]docstore.Op, 0, len(widgets)+1)
	for _, w := range widgets {
		ops = append(ops, docstore.DeleteOp(w.Path))
	}
	ops = append(ops, docstore.DeleteOp(TabPath(uid, tabID)))
	if err := g.store.Batch(ctx, ops); err != nil {
		return errors.Wrap(err, "delete tab")
	}
	return nil
}

// ListWidgets returns a tab's widgets in creation order.
func (g *Gateway) ListWidgets(ctx context.Context, uid, tabID string) ([]models.Widget, error) {
	docs, err := g.store.Query(ctx, WidgetsPath(uid, tabID), docstore.FieldCreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "list widgets")
	}
	widgets := make([]models.Widget, 0, len(docs))
	for _, d := range docs {
		var w models.Widget
		if err := d.Decode(&w); err != nil {
			return nil, err
		}
		widgets = append(widgets, w)
	}
	return widgets, nil
}

// CreateWidget stores a new widget and reads it back so the result carries
// the server timestamps.
func (g *Gateway) CreateWidget(ctx context.Context, uid, tabID string, fields WidgetFields) (models.Widget, error) {
	id, err := g.store.Create(ctx, WidgetsPath(uid, tabID), fields.fields())
	if err != nil {
		return models.Widget{}, errors.Wrap(err, "create widget")
	}
	return g.GetWidget(ctx, uid, tabID, id)
}

// GetWidget reads one widget.
func (g *Gateway) GetWidget(ctx context.Context, uid, tabID, widgetID string) (models.Widget, error) {
	doc, err := g.store.Get(ctx, WidgetPath(uid, tabID, widgetID))
	if err != nil {
		return models.Widget{}, errors.Wrap(err, "get widget")
	}
	var w models.Widget
	if err := doc.Decode(&w); err != nil {
		return models.Widget{}, err
	}
	return w, nil
}

// UpdateWidget merges the set members of fields into the stored widget.
func (g *Gateway) UpdateWidget(ctx context.Context, uid, tabID, widgetID string, fields WidgetFields) error {
	if err := g.store.Update(ctx, WidgetPath(uid, tabID, widgetID), fields.fields()); err != nil {
		return errors.Wrap(err, "update widget")
	}
	return nil
}

// DeleteWidget removes one widget.
func (g *Gateway) DeleteWidget(ctx context.Context, uid, tabID, widgetID string) error {
	if err := g.store.Delete(ctx, WidgetPath(uid, tabID, widgetID)); err != nil {
		return errors.Wrap(err, "delete widget")
	}
	return nil
}
