// Package workspace holds one client's view of a dashboard: the tab list,
// the active tab and that tab's widgets. Tab moves are applied locally
// before the store confirms them; when a write fails the local copy is
// dropped and re-read instead of being rolled back field by field.
package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/models"
)

// ErrNotLoaded is returned by mutations before Load or after sign-out.
var ErrNotLoaded = errors.New("workspace not loaded")

// ErrUnknownTab is returned when an id is not in the local tab list.
var ErrUnknownTab = errors.New("tab not in workspace")

// Backend is the subset of dashboard.Manager a workspace drives.
type Backend interface {
	ListTabs(ctx context.Context, user string) ([]models.Tab, error)
	CreateTab(ctx context.Context, user, label, icon string) (models.Tab, error)
	UpdateTab(ctx context.Context, user, tabID string, patch dashboard.TabPatch) error
	ReorderTabs(ctx context.Context, user string, orderedIDs []string) error
	DeleteTab(ctx context.Context, user, tabID string) error
	ListWidgets(ctx context.Context, user, tabID string) ([]models.Widget, error)
	CreateWidget(ctx context.Context, user, tabID string, in dashboard.WidgetInput) (models.Widget, error)
	UpdateWidget(ctx context.Context, user, tabID, widgetID string, patch dashboard.WidgetPatch) error
	DeleteWidget(ctx context.Context, user, tabID, widgetID string) error
}

// Workspace is safe for concurrent use; operations are serialized.
type Workspace struct {
	backend Backend
	log     *logrus.Entry

	mu      sync.Mutex
	user    string
	tabs    []models.Tab
	active  string
	widgets []models.Widget
}

// New returns an empty workspace.
func New(backend Backend) *Workspace {
	return &Workspace{
		backend: backend,
		log:     logrus.WithField("component", "workspace"),
	}
}

// Load reads the user's tabs, activates the first one and loads its widgets.
func (w *Workspace) Load(ctx context.Context, user string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = user
	w.active = ""
	w.widgets = nil
	return w.refetchLocked(ctx)
}

// Clear forgets all state, as on sign-out.
func (w *Workspace) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = ""
	w.tabs = nil
	w.active = ""
	w.widgets = nil
}

// Follow loads the workspace on sign-in and clears it on sign-out until
// events is closed or ctx is done.
func (w *Workspace) Follow(ctx context.Context, events <-chan auth.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.SignedIn {
				w.Clear()
				continue
			}
			if err := w.Load(ctx, ev.User.ID); err != nil {
				w.log.WithError(err).WithField("uid", ev.User.ID).Warn("workspace load failed")
			}
		}
	}
}

// User returns the loaded user, or "" when signed out.
func (w *Workspace) User() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user
}

// Tabs returns a copy of the local tab list in display order.
func (w *Workspace) Tabs() []models.Tab {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Tab(nil), w.tabs...)
}

// Active returns the active tab id, or "" when there are no tabs.
func (w *Workspace) Active() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Widgets returns a copy of the active tab's widgets.
func (w *Workspace) Widgets() []models.Widget {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Widget(nil), w.widgets...)
}

// SetActive switches tabs and loads the new tab's widgets.
func (w *Workspace) SetActive(ctx context.Context, tabID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" {
		return ErrNotLoaded
	}
	if w.indexLocked(tabID) < 0 {
		return ErrUnknownTab
	}
	return w.activateLocked(ctx, tabID)
}

// CreateTab creates a tab, makes it active and re-reads the tab list.
func (w *Workspace) CreateTab(ctx context.Context, label, icon string) (models.Tab, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" {
		return models.Tab{}, ErrNotLoaded
	}
	tab, err := w.backend.CreateTab(ctx, w.user, label, icon)
	if err != nil {
		return models.Tab{}, err
	}
	w.active = tab.ID
	w.widgets = nil
	if err := w.refetchLocked(ctx); err != nil {
		return tab, err
	}
	return tab, nil
}

// UpdateTab edits a tab and re-reads the tab list.
func (w *Workspace) UpdateTab(ctx context.Context, tabID string, patch dashboard.TabPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" {
		return ErrNotLoaded
	}
	if err := w.backend.UpdateTab(ctx, w.user, tabID, patch); err != nil {
		return err
	}
	return w.refetchLocked(ctx)
}

// DeleteTab deletes a tab. Deleting the active tab activates the first
// remaining one.
func (w *Workspace) DeleteTab(ctx context.Context, tabID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" {
		return ErrNotLoaded
	}
	if err := w.backend.DeleteTab(ctx, w.user, tabID); err != nil {
		return err
	}

	i := w.indexLocked(tabID)
	if i >= 0 {
		w.tabs = append(w.tabs[:i:i], w.tabs[i+1:]...)
	}
	if w.active != tabID {
		return nil
	}
	if len(w.tabs) == 0 {
		w.active = ""
		w.widgets = nil
		return nil
	}
	return w.activateLocked(ctx, w.tabs[0].ID)
}

// MoveTab drops dragged onto target: dragged is removed and reinserted at
// target's former index, every tab gets order = index locally, and the new
// sequence is persisted. If persisting fails the tab list is re-read and
// the write error is returned.
func (w *Workspace) MoveTab(ctx context.Context, draggedID, targetID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" {
		return ErrNotLoaded
	}
	if draggedID == targetID {
		return nil
	}
	from, to := w.indexLocked(draggedID), w.indexLocked(targetID)
	if from < 0 || to < 0 {
		return ErrUnknownTab
	}

	w.tabs = Move(w.tabs, from, to)
	ids := make([]string, len(w.tabs))
	for i := range w.tabs {
		w.tabs[i].Order = i
		ids[i] = w.tabs[i].ID
	}

	if err := w.backend.ReorderTabs(ctx, w.user, ids); err != nil {
		w.log.WithError(err).Warn("reorder failed, reloading tabs")
		if rerr := w.refetchLocked(ctx); rerr != nil {
			w.log.WithError(rerr).Warn("reload after failed reorder")
		}
		return err
	}
	return nil
}

// Move returns a copy of tabs with the element at from removed and
// reinserted at index to.
func Move(tabs []models.Tab, from, to int) []models.Tab {
	out := make([]models.Tab, 0, len(tabs))
	out = append(out, tabs[:from]...)
	out = append(out, tabs[from+1:]...)
	moved := tabs[from]
	out = append(out, models.Tab{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// CreateWidget adds a widget to the active tab and re-reads its widgets.
func (w *Workspace) CreateWidget(ctx context.Context, in dashboard.WidgetInput) (models.Widget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" || w.active == "" {
		return models.Widget{}, ErrNotLoaded
	}
	widget, err := w.backend.CreateWidget(ctx, w.user, w.active, in)
	if err != nil {
		return models.Widget{}, err
	}
	return widget, w.loadWidgetsLocked(ctx)
}

// UpdateWidget edits a widget on the active tab and re-reads its widgets.
func (w *Workspace) UpdateWidget(ctx context.Context, widgetID string, patch dashboard.WidgetPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" || w.active == "" {
		return ErrNotLoaded
	}
	if err := w.backend.UpdateWidget(ctx, w.user, w.active, widgetID, patch); err != nil {
		return err
	}
	return w.loadWidgetsLocked(ctx)
}

// DeleteWidget removes a widget from the active tab and re-reads its widgets.
func (w *Workspace) DeleteWidget(ctx context.Context, widgetID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == "" || w.active == "" {
		return ErrNotLoaded
	}
	if err := w.backend.DeleteWidget(ctx, w.user, w.active, widgetID); err != nil {
		return err
	}
	return w.loadWidgetsLocked(ctx)
}

func (w *Workspace) indexLocked(tabID string) int {
	for i, t := range w.tabs {
		if t.ID == tabID {
			return i
		}
	}
	return -1
}

// refetchLocked replaces the tab list with the stored one. The active tab is
// kept when it still exists, otherwise the first tab becomes active.
func (w *Workspace) refetchLocked(ctx context.Context) error {
	tabs, err := w.backend.ListTabs(ctx, w.user)
	if err != nil {
		return err
	}
	w.tabs = tabs
	if len(tabs) == 0 {
		w.active = ""
		w.widgets = nil
		return nil
	}
	if w.active != "" && w.indexLocked(w.active) >= 0 {
		if w.widgets == nil {
			return w.loadWidgetsLocked(ctx)
		}
		return nil
	}
	return w.activateLocked(ctx, tabs[0].ID)
}

func (w *Workspace) activateLocked(ctx context.Context, tabID string) error {
	w.active = tabID
	return w.loadWidgetsLocked(ctx)
}

func (w *Workspace) loadWidgetsLocked(ctx context.Context) error {
	widgets, err := w.backend.ListWidgets(ctx, w.user, w.active)
	if err != nil {
		w.widgets = nil
		return err
	}
	w.widgets = widgets
	return nil
}
