package workspace_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/gateway"
	"hud-backend/pkg/models"
	"hud-backend/pkg/testutil"
	"hud-backend/pkg/workspace"
)

const user = "u1"

func setup(t *testing.T, labels ...string) (*workspace.Workspace, *dashboard.Manager, *testutil.FaultStore) {
	t.Helper()
	store := testutil.NewFaultStore()
	m := dashboard.NewManager(gateway.New(store))
	for _, l := range labels {
		if _, err := m.CreateTab(context.Background(), user, l, ""); err != nil {
			t.Fatalf("seed %s: %v", l, err)
		}
	}
	ws := workspace.New(m)
	if err := ws.Load(context.Background(), user); err != nil {
		t.Fatalf("load: %v", err)
	}
	return ws, m, store
}

func tabLabels(tabs []models.Tab) string {
	s := ""
	for _, t := range tabs {
		s += t.Label
	}
	return s
}

func idOf(t *testing.T, ws *workspace.Workspace, label string) string {
	t.Helper()
	for _, tab := range ws.Tabs() {
		if tab.Label == label {
			return tab.ID
		}
	}
	t.Fatalf("no tab %s", label)
	return ""
}

func TestLoadActivatesFirstTab(t *testing.T) {
	ws, _, _ := setup(t, "A", "B")
	if tabLabels(ws.Tabs()) != "AB" {
		t.Fatalf("unexpected tabs %s", tabLabels(ws.Tabs()))
	}
	if ws.Active() != idOf(t, ws, "A") {
		t.Errorf("expected A active")
	}
}

func TestLoadEmpty(t *testing.T) {
	ws, _, _ := setup(t)
	if ws.Active() != "" || len(ws.Tabs()) != 0 {
		t.Errorf("expected empty workspace")
	}
}

func TestCreateTabBecomesActive(t *testing.T) {
	ws, _, _ := setup(t, "A")
	tab, err := ws.CreateTab(context.Background(), "B", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ws.Active() != tab.ID {
		t.Errorf("new tab should be active")
	}
	if tabLabels(ws.Tabs()) != "AB" {
		t.Errorf("unexpected tabs %s", tabLabels(ws.Tabs()))
	}
}

func TestDeleteActiveTabSelectsFirstRemaining(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := setup(t, "A", "B", "C")
	b := idOf(t, ws, "B")
	if err := ws.SetActive(ctx, b); err != nil {
		t.Fatalf("set active: %v", err)
	}

	if err := ws.DeleteTab(ctx, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ws.Active() != idOf(t, ws, "A") {
		t.Errorf("expected A active after deleting B")
	}
	if tabLabels(ws.Tabs()) != "AC" {
		t.Errorf("unexpected tabs %s", tabLabels(ws.Tabs()))
	}
}

func TestDeleteInactiveTabKeepsActive(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := setup(t, "A", "B")
	a := ws.Active()
	if err := ws.DeleteTab(ctx, idOf(t, ws, "B")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ws.Active() != a {
		t.Errorf("active tab changed")
	}
}

func TestDeleteLastTab(t *testing.T) {
	ws, _, _ := setup(t, "A")
	if err := ws.DeleteTab(context.Background(), ws.Active()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ws.Active() != "" || len(ws.Widgets()) != 0 {
		t.Errorf("expected nothing active")
	}
}

func TestMove(t *testing.T) {
	tabs := []models.Tab{{Label: "A"}, {Label: "B"}, {Label: "C"}, {Label: "D"}}
	cases := []struct {
		from, to int
		want     string
	}{
		{0, 2, "BCAD"},
		{3, 0, "DABC"},
		{1, 0, "BACD"},
		{2, 3, "ABDC"},
	}
	for _, tc := range cases {
		if got := tabLabels(workspace.Move(tabs, tc.from, tc.to)); got != tc.want {
			t.Errorf("Move(%d,%d) = %s, want %s", tc.from, tc.to, got, tc.want)
		}
	}
	if tabLabels(tabs) != "ABCD" {
		t.Error("Move must not modify its input")
	}
}

func TestMoveTabPersists(t *testing.T) {
	ctx := context.Background()
	ws, m, _ := setup(t, "A", "B", "C")

	if err := ws.MoveTab(ctx, idOf(t, ws, "C"), idOf(t, ws, "A")); err != nil {
		t.Fatalf("move: %v", err)
	}
	if tabLabels(ws.Tabs()) != "CAB" {
		t.Errorf("local order = %s, want CAB", tabLabels(ws.Tabs()))
	}
	for i, tab := range ws.Tabs() {
		if tab.Order != i {
			t.Errorf("local %s order = %d, want %d", tab.Label, tab.Order, i)
		}
	}
	stored, _ := m.ListTabs(ctx, user)
	if tabLabels(stored) != "CAB" {
		t.Errorf("stored order = %s, want CAB", tabLabels(stored))
	}
}

func TestMoveTabFailureRefetches(t *testing.T) {
	ctx := context.Background()
	ws, _, store := setup(t, "A", "B", "C")
	boom := errors.New("offline")
	store.BatchErr = boom

	err := ws.MoveTab(ctx, idOf(t, ws, "A"), idOf(t, ws, "C"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if tabLabels(ws.Tabs()) != "ABC" {
		t.Errorf("expected authoritative order after failure, got %s", tabLabels(ws.Tabs()))
	}
}

func TestMoveTabOntoItselfIsNoop(t *testing.T) {
	ws, _, store := setup(t, "A", "B")
	store.ResetCounts()
	a := idOf(t, ws, "A")
	if err := ws.MoveTab(context.Background(), a, a); err != nil {
		t.Fatalf("move: %v", err)
	}
	if store.Writes() != 0 {
		t.Errorf("expected no writes, got %d", store.Writes())
	}
}

func TestWidgetsFollowActiveTab(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := setup(t, "A", "B")

	if _, err := ws.CreateWidget(ctx, dashboard.WidgetInput{URL: "https://a.example"}); err != nil {
		t.Fatalf("create widget: %v", err)
	}
	if len(ws.Widgets()) != 1 {
		t.Fatalf("expected 1 widget on A, got %d", len(ws.Widgets()))
	}

	if err := ws.SetActive(ctx, idOf(t, ws, "B")); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if len(ws.Widgets()) != 0 {
		t.Errorf("expected B to have no widgets")
	}

	if err := ws.SetActive(ctx, "nope"); !errors.Is(err, workspace.ErrUnknownTab) {
		t.Errorf("expected ErrUnknownTab, got %v", err)
	}
}

func TestWidgetEditAndDelete(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := setup(t, "A")
	w, _ := ws.CreateWidget(ctx, dashboard.WidgetInput{URL: "https://a.example", Name: "A"})

	name := "Renamed"
	if err := ws.UpdateWidget(ctx, w.ID, dashboard.WidgetPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := ws.Widgets(); len(got) != 1 || got[0].Name != "Renamed" {
		t.Errorf("unexpected widgets %+v", got)
	}
	if err := ws.DeleteWidget(ctx, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ws.Widgets()) != 0 {
		t.Errorf("expected widget removed")
	}
}

func TestMutationsRequireLoad(t *testing.T) {
	ws := workspace.New(dashboard.NewManager(gateway.New(testutil.NewFaultStore())))
	if _, err := ws.CreateTab(context.Background(), "A", ""); !errors.Is(err, workspace.ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
}

func TestFollowTracksSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := testutil.NewFaultStore()
	svc := auth.NewService(store).WithCost(bcrypt.MinCost)
	uid, err := svc.CreateUser(ctx, "dana@example.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	m := dashboard.NewManager(gateway.New(store))
	m.CreateTab(ctx, uid, "Home", "")

	session := auth.NewSession(svc)
	ws := workspace.New(m)
	events, stop := session.Subscribe()
	defer stop()
	go ws.Follow(ctx, events)

	if err := session.SignIn(ctx, "dana@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	waitFor(t, func() bool { return len(ws.Tabs()) == 1 && ws.User() == uid })

	session.SignOut()
	waitFor(t, func() bool { return ws.User() == "" && len(ws.Tabs()) == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
