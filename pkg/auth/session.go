package auth

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/models"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (models.User, error)
}

// Event reports an identity change. User is the zero value after sign-out.
type Event struct {
	User     models.User
	SignedIn bool
}

// Session tracks the signed-in identity of one client and fans identity
// changes out to subscribers. Publishing never blocks. When a subscriber's
// buffer is full its oldest pending event is discarded, so the newest
// identity is always the last one it receives.
type Session struct {
	auth Authenticator
	log  *logrus.Entry

	mu      sync.Mutex
	current *models.User
	subs    map[chan Event]struct{}
	depth   int
}

// NewSession returns a signed-out Session.
func NewSession(auth Authenticator) *Session {
	return &Session{
		auth:  auth,
		log:   logrus.WithField("component", "auth.session"),
		subs:  make(map[chan Event]struct{}),
		depth: 16,
	}
}

// SignIn authenticates and, on success, publishes the new identity.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	user, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		s.log.WithError(err).Debug("sign-in failed")
		return err
	}
	s.mu.Lock()
	s.current = &user
	s.publishLocked(Event{User: user, SignedIn: true})
	s.mu.Unlock()
	s.log.WithField("uid", user.ID).Info("signed in")
	return nil
}

// SignOut clears the identity. Signing out twice publishes once.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	uid := s.current.ID
	s.current = nil
	s.publishLocked(Event{})
	s.log.WithField("uid", uid).Info("signed out")
}

// CurrentUser returns the signed-in identity, if any.
func (s *Session) CurrentUser() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.User{}, false
	}
	return *s.current, true
}

// Subscribe registers for identity changes. The current state is delivered
// first. The returned cancel func closes the channel.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, s.depth)
	s.mu.Lock()
	if s.current != nil {
		ch <- Event{User: *s.current, SignedIn: true}
	} else {
		ch <- Event{}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) publishLocked(ev Event) {
	coalesced := 0
	for ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Only publishers send and they hold s.mu, so one free slot is enough.
		select {
		case <-ch:
		default:
		}
		ch <- ev
		coalesced++
	}
	if coalesced > 0 {
		s.log.WithField("count", coalesced).Debug("slow subscriber: oldest session event discarded")
	}
}
