package auth

import (
	"fmt"
	"net/http"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/gorilla/sessions"
)

const (
	sessionUserID    = "user_id"
	sessionUserName  = "user_name"
	sessionAvatarURL = "avatar_url"
)

// SessionResolver reads a gorilla/sessions cookie written by the login service.
type SessionResolver struct {
	name  string
	store *sessions.CookieStore
}

// NewSessionResolver takes key pairs as gorilla/sessions expects them: authentication
// key, then optional encryption key, repeated for rotation.
func NewSessionResolver(name string, keys ...string) *SessionResolver {
	pairs := make([][]byte, len(keys))
	for i, k := range keys {
		pairs[i] = []byte(k)
	}
	return &SessionResolver{name: name, store: sessions.NewCookieStore(pairs...)}
}

func (s *SessionResolver) ResolveUser(r *http.Request) (*state.Identity, error) {
	if _, err := r.Cookie(s.name); err != nil {
		return nil, nil
	}
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	userID, ok := session.Values[sessionUserID].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: session has no user", ErrInvalidSession)
	}
	name, _ := session.Values[sessionUserName].(string)
	if name == "" {
		name = userID
	}
	avatar, _ := session.Values[sessionAvatarURL].(string)
	return &state.Identity{ID: userID, Name: name, AvatarURL: avatar}, nil
}

// Save writes a session for user to the response.
func (s *SessionResolver) Save(w http.ResponseWriter, r *http.Request, user state.Identity) error {
	session, err := s.store.New(r, s.name)
	if err != nil && session == nil {
		return err
	}
	session.Values[sessionUserID] = user.ID
	session.Values[sessionUserName] = user.Name
	session.Values[sessionAvatarURL] = user.AvatarURL
	return session.Save(r, w)
}
