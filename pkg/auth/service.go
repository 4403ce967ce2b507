// Package auth is the local authentication provider: bcrypt-hashed accounts
// kept in the document store, plus a client-side session that broadcasts
// identity changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"hud-backend/pkg/docstore"
	"hud-backend/pkg/models"
)

const (
	accountsCollection = "accounts"
	// emailsCollection holds one document per email, keyed by emailKey, so
	// uniqueness and sign-in lookups are single-document operations.
	emailsCollection  = "account_emails"
	revokedCollection = "revoked_sessions"
)

var (
	// ErrInvalidCredentials hides which of email or password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when creating a second account for an email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrMissingField is returned when email or password is empty.
	ErrMissingField = errors.New("email and password are required")
	// ErrUnknownUser is returned when looking up an account id that does not exist.
	ErrUnknownUser = errors.New("user not found")
)

// account is the stored shape of a user.
type account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a account) user() models.User {
	return models.User{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt}
}

// Service manages accounts.
type Service struct {
	store docstore.Store
	cost  int
	log   *logrus.Entry
}

// NewService returns a Service storing accounts in store.
func NewService(store docstore.Store) *Service {
	return &Service{
		store: store,
		cost:  bcrypt.DefaultCost,
		log:   logrus.WithField("component", "auth"),
	}
}

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailKey(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

// CreateUser registers a new account and returns its id. The email is
// claimed first with a conditional create, so concurrent registrations of
// one address leave exactly one account.
func (s *Service) CreateUser(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", ErrMissingField
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New().String()
	claim := docstore.JoinPath(emailsCollection, emailKey(email))
	err = s.store.CreateAt(ctx, claim, docstore.Fields{"uid": id, "email": email})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return "", ErrEmailTaken
	}
	if err != nil {
		return "", fmt.Errorf("claim email: %w", err)
	}

	err = s.store.CreateAt(ctx, docstore.JoinPath(accountsCollection, id), docstore.Fields{
		"email":        email,
		"passwordHash": string(hash),
	})
	if err != nil {
		if derr := s.store.Delete(ctx, claim); derr != nil {
			s.log.WithError(derr).WithField("email", email).Warn("failed to release email claim")
		}
		return "", fmt.Errorf("create account: %w", err)
	}
	s.log.WithFields(logrus.Fields{"uid": id, "email": email}).Info("account created")
	return id, nil
}

// Authenticate checks credentials. Unknown email and wrong password both
// yield ErrInvalidCredentials; store failures are returned as is.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	acct, err := s.findByEmail(ctx, email)
	if errors.Is(err, ErrUnknownUser) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return acct.user(), nil
}

// Lookup returns the account with the given id.
func (s *Service) Lookup(ctx context.Context, uid string) (models.User, error) {
	acct, err := s.account(ctx, uid)
	if err != nil {
		return models.User{}, err
	}
	return acct.user(), nil
}

// LookupEmail returns the account registered under email.
func (s *Service) LookupEmail(ctx context.Context, email string) (models.User, error) {
	acct, err := s.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return models.User{}, err
	}
	return acct.user(), nil
}

// ListUsers returns every account in creation order.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	accts, err := s.accounts(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(accts))
	for _, a := range accts {
		users = append(users, a.user())
	}
	return users, nil
}

// RevokeSession marks a refresh session as signed out until the given time,
// after which its tokens have expired anyway. Revoking twice is a no-op.
func (s *Service) RevokeSession(ctx context.Context, sessionID string, until time.Time) error {
	if sessionID == "" {
		return nil
	}
	err := s.store.CreateAt(ctx, docstore.JoinPath(revokedCollection, sessionID), docstore.Fields{
		"expiresAt": until.UTC(),
	})
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether a refresh session was signed out. It is a single
// document read.
func (s *Service) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	_, err := s.store.Get(ctx, docstore.JoinPath(revokedCollection, sessionID))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return true, nil
}

// PurgeRevokedSessions deletes revocations that expired before now and
// returns how many were removed.
func (s *Service) PurgeRevokedSessions(ctx context.Context, now time.Time) (int, error) {
	docs, err := s.store.Query(ctx, revokedCollection, "expiresAt")
	if err != nil {
		return 0, fmt.Errorf("list revoked sessions: %w", err)
	}
	var ops []docstore.Op
	for _, d := range docs {
		var rec struct {
			ExpiresAt time.Time `json:"expiresAt"`
		}
		if err := d.Decode(&rec); err != nil {
			return 0, err
		}
		if rec.ExpiresAt.Before(now) {
			ops = append(ops, docstore.DeleteOp(d.Path))
		}
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.store.Batch(ctx, ops); err != nil {
		return 0, fmt.Errorf("purge revoked sessions: %w", err)
	}
	s.log.WithField("count", len(ops)).Info("purged expired session revocations")
	return len(ops), nil
}

func (s *Service) account(ctx context.Context, uid string) (account, error) {
	if strings.TrimSpace(uid) == "" {
		return account{}, ErrUnknownUser
	}
	doc, err := s.store.Get(ctx, docstore.JoinPath(accountsCollection, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return account{}, ErrUnknownUser
	}
	if err != nil {
		return account{}, err
	}
	var acct account
	if err := doc.Decode(&acct); err != nil {
		return account{}, err
	}
	return acct, nil
}

func (s *Service) accounts(ctx context.Context) ([]account, error) {
	docs, err := s.store.Query(ctx, accountsCollection, docstore.FieldCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]account, 0, len(docs))
	for _, d := range docs {
		var a account
		if err := d.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// findByEmail follows the email claim to its account. A claim whose account
// was never written counts as unknown.
func (s *Service) findByEmail(ctx context.Context, email string) (account, error) {
	if email == "" {
		return account{}, ErrUnknownUser
	}
	doc, err := s.store.Get(ctx, docstore.JoinPath(emailsCollection, emailKey(email)))
	if errors.Is(err, docstore.ErrNotFound) {
		return account{}, ErrUnknownUser
	}
	if err != nil {
		return account{}, err
	}
	uid, _ := doc.Fields["uid"].(string)
	return s.account(ctx, uid)
}
