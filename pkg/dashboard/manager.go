// Package dashboard owns the ordering rules for a user's tabs and the
// placement rules for widgets inside a tab.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/colors"
	"hud-backend/pkg/gateway"
	"hud-backend/pkg/models"
)

// Default size of a widget placed without an explicit position.
const (
	DefaultWidgetWidth  = 3
	DefaultWidgetHeight = 2
)

// TabPatch is a partial tab update. Nil fields are left unchanged.
type TabPatch struct {
	Label *string
	Icon  *string
	Order *int
}

// WidgetInput describes a new widget. Empty Type means "url", empty Color
// picks a pastel color and a nil GridPosition stacks the widget below the
// existing ones.
type WidgetInput struct {
	Type         string
	Name         string
	URL          string
	Color        string
	IconURL      string
	GridPosition *models.GridPosition
}

// WidgetPatch is a partial widget update. Nil fields are left unchanged.
type WidgetPatch struct {
	Name         *string
	URL          *string
	Color        *string
	IconURL      *string
	GridPosition *models.GridPosition
}

// Manager applies the dashboard rules on top of a Gateway.
type Manager struct {
	gw     *gateway.Gateway
	color  func() string
	logger *logrus.Entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithColorSource replaces the default pastel color generator.
func WithColorSource(fn func() string) Option {
	return func(m *Manager) { m.color = fn }
}

// WithLogger sets the logger used for write operations.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager persisting through gw.
func NewManager(gw *gateway.Gateway, opts ...Option) *Manager {
	m := &Manager{
		gw:     gw,
		color:  colors.Pastel,
		logger: logrus.WithField("component", "dashboard"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListTabs returns all of the user's tabs, ascending by order.
func (m *Manager) ListTabs(ctx context.Context, user string) ([]models.Tab, error) {
	if user == "" {
		return nil, ErrNoUser
	}
	return m.gw.ListTabs(ctx, user)
}

// GetTab reads a single tab.
func (m *Manager) GetTab(ctx context.Context, user, tabID string) (models.Tab, error) {
	if user == "" {
		return models.Tab{}, ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" {
		return models.Tab{}, invalid("tabId", "tab id is required")
	}
	return m.gw.GetTab(ctx, user, tabID)
}

// CreateTab appends a tab after the current last one.
func (m *Manager) CreateTab(ctx context.Context, user, label, icon string) (models.Tab, error) {
	if user == "" {
		return models.Tab{}, ErrNoUser
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return models.Tab{}, invalid("label", "tab label is required")
	}

	tabs, err := m.gw.ListTabs(ctx, user)
	if err != nil {
		return models.Tab{}, err
	}
	tab, err := m.gw.CreateTab(ctx, user, label, strings.TrimSpace(icon), nextOrder(tabs))
	if err != nil {
		return models.Tab{}, err
	}
	m.logger.WithFields(logrus.Fields{"user": user, "tab": tab.ID, "order": tab.Order}).Info("tab created")
	return tab, nil
}

// nextOrder is one past the highest order in use, or 0 for an empty set.
func nextOrder(tabs []models.Tab) int {
	if len(tabs) == 0 {
		return 0
	}
	highest := tabs[0].Order
	for _, t := range tabs[1:] {
		if t.Order > highest {
			highest = t.Order
		}
	}
	return highest + 1
}

// UpdateTab applies a partial update to a tab. Order changes only when the
// patch sets it.
func (m *Manager) UpdateTab(ctx context.Context, user, tabID string, patch TabPatch) error {
	if user == "" {
		return ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" {
		return invalid("tabId", "tab id is required")
	}

	var fields gateway.TabFields
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return invalid("label", "tab label cannot be blank")
		}
		fields.Label = &label
	}
	if patch.Icon != nil {
		icon := strings.TrimSpace(*patch.Icon)
		fields.Icon = &icon
	}
	if patch.Order != nil {
		if *patch.Order < 0 {
			return invalid("order", "order must be non-negative")
		}
		fields.Order = patch.Order
	}
	if fields == (gateway.TabFields{}) {
		return nil
	}
	return m.gw.UpdateTab(ctx, user, tabID, fields)
}

// RenameTab is UpdateTab restricted to label and icon; patch.Order is ignored.
func (m *Manager) RenameTab(ctx context.Context, user, tabID string, patch TabPatch) error {
	return m.UpdateTab(ctx, user, tabID, TabPatch{Label: patch.Label, Icon: patch.Icon})
}

// ReorderTabs sets order = index for every id in orderedIDs, in one atomic
// batch. orderedIDs must list each of the user's tabs exactly once. Nothing
// is cached; on failure the caller re-reads the authoritative order.
func (m *Manager) ReorderTabs(ctx context.Context, user string, orderedIDs []string) error {
	if user == "" {
		return ErrNoUser
	}
	seen := make(map[string]bool, len(orderedIDs))
	for i, id := range orderedIDs {
		if strings.TrimSpace(id) == "" {
			return invalid("tabIds", "entry %d is empty", i)
		}
		if seen[id] {
			return invalid("tabIds", "tab %s listed more than once", id)
		}
		seen[id] = true
	}

	current, err := m.gw.ListTabs(ctx, user)
	if err != nil {
		return err
	}
	if len(current) != len(orderedIDs) {
		return invalid("tabIds", "expected %d tab ids, got %d", len(current), len(orderedIDs))
	}
	for _, t := range current {
		if !seen[t.ID] {
			return invalid("tabIds", "tab %s missing from new order", t.ID)
		}
	}

	orders := make([]gateway.TabOrder, len(orderedIDs))
	for i, id := range orderedIDs {
		orders[i] = gateway.TabOrder{ID: id, Order: i}
	}
	if len(orders) == 0 {
		return nil
	}
	if err := m.gw.UpdateTabOrders(ctx, user, orders); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{"user": user, "tabs": len(orders)}).Info("tabs reordered")
	return nil
}

// DeleteTab removes a tab together with all of its widgets.
func (m *Manager) DeleteTab(ctx context.Context, user, tabID string) error {
	if user == "" {
		return ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" {
		return invalid("tabId", "tab id is required")
	}
	if err := m.gw.DeleteTab(ctx, user, tabID); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{"user": user, "tab": tabID}).Info("tab deleted")
	return nil
}

// ListWidgets returns a tab's widgets in creation order.
func (m *Manager) ListWidgets(ctx context.Context, user, tabID string) ([]models.Widget, error) {
	if user == "" {
		return nil, ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" {
		return nil, invalid("tabId", "tab id is required")
	}
	return m.gw.ListWidgets(ctx, user, tabID)
}

// GetWidget reads a single widget.
func (m *Manager) GetWidget(ctx context.Context, user, tabID, widgetID string) (models.Widget, error) {
	if user == "" {
		return models.Widget{}, ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" || strings.TrimSpace(widgetID) == "" {
		return models.Widget{}, invalid("widgetId", "tab and widget ids are required")
	}
	return m.gw.GetWidget(ctx, user, tabID, widgetID)
}

// CreateWidget adds a widget to a tab. Without an explicit position the
// widget goes to column 0 on the first row below every existing widget.
// Explicit positions are not checked for overlap.
func (m *Manager) CreateWidget(ctx context.Context, user, tabID string, in WidgetInput) (models.Widget, error) {
	if user == "" {
		return models.Widget{}, ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" {
		return models.Widget{}, invalid("tabId", "tab id is required")
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		typ = models.WidgetTypeURL
	}
	if typ != models.WidgetTypeURL {
		return models.Widget{}, invalid("type", "unsupported widget type %q", in.Type)
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return models.Widget{}, invalid("data.url", "widget url is required")
	}
	if in.GridPosition != nil {
		if err := validatePosition(*in.GridPosition); err != nil {
			return models.Widget{}, err
		}
	}

	pos := in.GridPosition
	if pos == nil {
		existing, err := m.gw.ListWidgets(ctx, user, tabID)
		if err != nil {
			return models.Widget{}, err
		}
		p := nextPosition(existing)
		pos = &p
	}

	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = m.color()
	}
	fields := gateway.WidgetFields{
		Type:         &typ,
		URL:          &url,
		Color:        &color,
		GridPosition: pos,
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		fields.Name = &name
	}
	if icon := strings.TrimSpace(in.IconURL); icon != "" {
		fields.IconURL = &icon
	}

	w, err := m.gw.CreateWidget(ctx, user, tabID, fields)
	if err != nil {
		return models.Widget{}, err
	}
	m.logger.WithFields(logrus.Fields{"user": user, "tab": tabID, "widget": w.ID}).Info("widget created")
	return w, nil
}

// nextPosition stacks a default-sized widget below the lowest occupied row.
func nextPosition(existing []models.Widget) models.GridPosition {
	y := 0
	for _, w := range existing {
		if b := w.GridPosition.Bottom(); b > y {
			y = b
		}
	}
	return models.GridPosition{X: 0, Y: y, W: DefaultWidgetWidth, H: DefaultWidgetHeight}
}

func validatePosition(p models.GridPosition) error {
	switch {
	case p.X < 0 || p.Y < 0:
		return invalid("gridPosition", "x and y must be non-negative, got (%d,%d)", p.X, p.Y)
	case p.W < 1 || p.H < 1:
		return invalid("gridPosition", "w and h must be at least 1, got %dx%d", p.W, p.H)
	}
	return nil
}

// UpdateWidget applies a partial update to a widget, including its position.
func (m *Manager) UpdateWidget(ctx context.Context, user, tabID, widgetID string, patch WidgetPatch) error {
	if user == "" {
		return ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" || strings.TrimSpace(widgetID) == "" {
		return invalid("widgetId", "tab and widget ids are required")
	}

	var fields gateway.WidgetFields
	if patch.URL != nil {
		url := strings.TrimSpace(*patch.URL)
		if url == "" {
			return invalid("data.url", "widget url cannot be blank")
		}
		fields.URL = &url
	}
	if patch.GridPosition != nil {
		if err := validatePosition(*patch.GridPosition); err != nil {
			return err
		}
		fields.GridPosition = patch.GridPosition
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		fields.Name = &name
	}
	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		if color == "" {
			color = m.color()
		}
		fields.Color = &color
	}
	if patch.IconURL != nil {
		icon := strings.TrimSpace(*patch.IconURL)
		fields.IconURL = &icon
	}
	if fields == (gateway.WidgetFields{}) {
		return nil
	}
	return m.gw.UpdateWidget(ctx, user, tabID, widgetID, fields)
}

// DeleteWidget removes a single widget.
func (m *Manager) DeleteWidget(ctx context.Context, user, tabID, widgetID string) error {
	if user == "" {
		return ErrNoUser
	}
	if strings.TrimSpace(tabID) == "" || strings.TrimSpace(widgetID) == "" {
		return invalid("widgetId", "tab and widget ids are required")
	}
	if err := m.gw.DeleteWidget(ctx, user, tabID, widgetID); err != nil {
		return fmt.Errorf("delete widget %s: %w", widgetID, err)
	}
	return nil
}
