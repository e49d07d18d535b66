package openstack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

var errTooFewLines = errors.New("expected at least two lines")

// Token is an issued identity token.
type Token struct {
	ID        string
	Expires   string
	ExpiresAt time.Time
	ProjectID string
	UserID    string
}

// Session holds the lazily issued token of one run. It is never reused
// across runs.
type Session struct {
	client  *Client
	retries int
	logger  zerolog.Logger

	mu    sync.Mutex
	token *Token
}

// NewSession creates a session. retries is the number of extra attempts
// after a non-authentication failure to issue the token.
func NewSession(client *Client, retries int, logger zerolog.Logger) *Session {
	if retries < 0 {
		retries = 0
	}
	return &Session{
		client:  client,
		retries: retries,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Client returns the client the session authenticates with.
func (s *Session) Client() *Client {
	return s.client
}

// Token returns the cached token, issuing one on first use. A pre-issued
// token in the credentials is returned without any call.
func (s *Session) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		return s.token, nil
	}

	if creds := s.client.Credentials(); creds != nil && creds.Token != "" {
		s.token = &Token{ID: creds.Token}
		return s.token, nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		out, err := s.client.Run(ctx, "token", "issue", FormatValue, nil)
		if err == nil {
			token, perr := parseToken(out)
			if perr != nil {
				return nil, perr
			}
			s.token = token
			s.logger.Debug().Str("user_id", token.UserID).Str("expires", token.Expires).Msg("token issued")
			return s.token, nil
		}

		if engine.IsAuthError(err) {
			return nil, err
		}
		lastErr = err
		if attempt < s.retries {
			s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("token issue failed, retrying")
		}
	}
	return nil, lastErr
}

// Authenticated returns a client that reuses the session token for every
// later call instead of authenticating with the password again.
func (s *Session) Authenticated(ctx context.Context) (*Client, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	creds := s.client.Credentials()
	if creds == nil || (creds.Password == "" && creds.Token == token.ID) {
		return s.client, nil
	}
	return s.client.WithCredentials(creds.WithToken(token.ID)), nil
}

// Reset drops the cached token.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}

// parseToken reads `token issue --format value`: expires, id, then
// project_id and user_id. Unscoped tokens omit project_id.
func parseToken(out *Output) (*Token, error) {
	lines := out.Values()
	if len(lines) < 2 {
		return nil, unparseable(out, errTooFewLines)
	}
	token := &Token{Expires: lines[0], ID: lines[1]}
	switch len(lines) {
	case 3:
		token.UserID = lines[2]
	default:
		if len(lines) >= 4 {
			token.ProjectID = lines[2]
			token.UserID = lines[3]
		}
	}
	if t, err := time.Parse(time.RFC3339, token.Expires); err == nil {
		token.ExpiresAt = t
	}
	return token, nil
}

// VerifyPassword reports whether password authenticates userID. An
// authentication failure means no match and is not an error; any other
// failure is returned.
func (c *Client) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	if c.creds == nil {
		return false, engine.NewConfigError("no credentials to derive the auth URL from", nil).
			WithCode(engine.ErrCodeMissingCredentials)
	}
	probe := c.WithCredentials(c.creds.ForPasswordProbe(userID, password))
	_, err := probe.Run(ctx, "token", "issue", FormatValue, nil)
	if err == nil {
		return true, nil
	}
	if engine.IsAuthError(err) {
		return false, nil
	}
	return false, err
}
