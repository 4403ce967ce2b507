package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hud-backend/pkg/docstore"
	"hud-backend/pkg/testutil"
)

func newService() *Service {
	return NewService(docstore.NewMemoryStore()).WithCost(bcrypt.MinCost)
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	uid, err := svc.CreateUser(ctx, " Alice@Example.com ", "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if uid == "" {
		t.Fatal("expected uid")
	}

	user, err := svc.Authenticate(ctx, "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != uid || user.Email != "alice@example.com" {
		t.Errorf("unexpected user %+v", user)
	}

	got, err := svc.Lookup(ctx, uid)
	if err != nil || got.Email != "alice@example.com" {
		t.Errorf("lookup: %+v %v", got, err)
	}
}

func TestAuthenticateNormalizesFailures(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	svc.CreateUser(ctx, "bob@example.com", "right")

	_, wrongPassword := svc.Authenticate(ctx, "bob@example.com", "wrong")
	_, unknownEmail := svc.Authenticate(ctx, "nobody@example.com", "right")
	_, empty := svc.Authenticate(ctx, "", "")

	for name, err := range map[string]error{"wrong password": wrongPassword, "unknown email": unknownEmail, "empty": empty} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
		if err != nil && err.Error() != "invalid email or password" {
			t.Errorf("%s: message %q leaks detail", name, err.Error())
		}
	}
}

func TestAuthenticateSurfacesStoreErrors(t *testing.T) {
	store := testutil.NewFaultStore()
	svc := NewService(store).WithCost(bcrypt.MinCost)
	boom := errors.New("store down")
	store.GetErr = boom

	if _, err := svc.Authenticate(context.Background(), "a@example.com", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestCreateUserRejectsDuplicatesAndBlanks(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	if _, err := svc.CreateUser(ctx, "dup@example.com", "pw"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "DUP@example.com", "pw2"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, "", "pw"); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, "x@example.com", ""); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}

	users, _ := svc.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("expected one account, got %d", len(users))
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := newService().Lookup(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestConcurrentCreateUserLeavesOneAccount(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateUser(ctx, "race@example.com", "pw")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, ErrEmailTaken):
			t.Errorf("unexpected error %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one successful create, got %d", created)
	}
	users, err := svc.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one account, got %d (%v)", len(users), err)
	}
	if u, err := svc.LookupEmail(ctx, "RACE@example.com"); err != nil || u.ID != users[0].ID {
		t.Errorf("lookup by email: %+v %v", u, err)
	}
}

func TestRevokeSession(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	until := time.Now().Add(time.Hour)

	revoked, err := svc.IsRevoked(ctx, "sid-1")
	if err != nil || revoked {
		t.Fatalf("fresh session reported revoked: %v %v", revoked, err)
	}
	if err := svc.RevokeSession(ctx, "sid-1", until); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.RevokeSession(ctx, "sid-1", until); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if revoked, _ := svc.IsRevoked(ctx, "sid-1"); !revoked {
		t.Error("expected sid-1 revoked")
	}
	if revoked, _ := svc.IsRevoked(ctx, "sid-2"); revoked {
		t.Error("sid-2 must not be revoked")
	}
}

func TestIsRevokedReadsOneDocument(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFaultStore()
	svc := NewService(store).WithCost(bcrypt.MinCost)
	until := time.Now().Add(time.Hour)
	for _, sid := range []string{"a", "b", "c", "d"} {
		if err := svc.RevokeSession(ctx, sid, until); err != nil {
			t.Fatalf("revoke %s: %v", sid, err)
		}
	}

	store.ResetCounts()
	if revoked, err := svc.IsRevoked(ctx, "c"); err != nil || !revoked {
		t.Fatalf("expected c revoked: %v %v", revoked, err)
	}
	if revoked, err := svc.IsRevoked(ctx, "live"); err != nil || revoked {
		t.Fatalf("expected live session: %v %v", revoked, err)
	}
	if store.Queries != 0 || store.Gets != 2 {
		t.Errorf("expected 2 point reads and no queries, got gets=%d queries=%d", store.Gets, store.Queries)
	}
}

func TestIsRevokedSurfacesStoreErrors(t *testing.T) {
	store := testutil.NewFaultStore()
	boom := errors.New("store down")
	store.GetErr = boom
	if _, err := NewService(store).IsRevoked(context.Background(), "sid"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPurgeRevokedSessions(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc.RevokeSession(ctx, "old", now.Add(-time.Minute))
	svc.RevokeSession(ctx, "fresh", now.Add(time.Hour))

	n, err := svc.PurgeRevokedSessions(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one purged, got %d", n)
	}
	if revoked, _ := svc.IsRevoked(ctx, "old"); revoked {
		t.Error("expired revocation should be gone")
	}
	if revoked, _ := svc.IsRevoked(ctx, "fresh"); !revoked {
		t.Error("live revocation must be kept")
	}
	if n, _ := svc.PurgeRevokedSessions(ctx, now); n != 0 {
		t.Errorf("second purge removed %d", n)
	}
}
