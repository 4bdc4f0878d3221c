package lastfm

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/shkh/lastfm-go/lastfm"
)

// AuthURL returns the page where the user grants access. Last.fm redirects
// to callback with ?token=... once the user accepts.
func (c *Client) AuthURL(callback string) (string, error) {
	u, err := url.Parse(c.authURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, c.authURL)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	if callback != "" {
		q.Set("cb", callback)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetSession exchanges an authorized token for a session and installs it.
func (c *Client) GetSession(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoToken
	}
	params := Params{
		{Key: "api_key", Value: c.apiKey},
		{Key: "method", Value: "auth.getSession"},
		{Key: "token", Value: token},
	}
	body, err := c.get(ctx, params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Session{}, &TransportError{Op: "auth.getSession", StatusCode: 200, Err: err}
	}
	if resp.Error != 0 {
		return Session{}, fmt.Errorf("%w: %w", ErrAuthFailed, &APIError{Code: resp.Error, Message: resp.Message})
	}
	if resp.Session == nil || resp.Session.Key == "" {
		return Session{}, fmt.Errorf("%w: response has no session", ErrAuthFailed)
	}

	sess := Session{
		Name:       resp.Session.Name,
		Key:        resp.Session.Key,
		Subscriber: resp.Session.Subscriber != 0,
	}
	c.SetSession(sess)
	c.log.Info().Str("user", sess.Name).Msg("session established")
	return sess, nil
}

// DesktopToken requests an unauthorized token for the desktop flow and
// returns it with the page the user must visit to approve it.
func (c *Client) DesktopToken() (token, authURL string, err error) {
	token, err = c.api.GetToken()
	if err != nil {
		return "", "", fmt.Errorf("get token: %w", err)
	}
	u, err := url.Parse(c.authURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, c.authURL)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return token, u.String(), nil
}

// LoginWithDesktopToken completes the desktop flow once the user approved
// token in the browser.
func (c *Client) LoginWithDesktopToken(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoToken
	}
	if err := c.api.LoginWithToken(token); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	sess := Session{Key: c.api.GetSessionKey()}

	// The session is usable even when the profile lookup fails.
	if info, err := c.api.User.GetInfo(nil); err == nil {
		sess.Name = info.Name
	} else {
		c.log.Warn().Err(err).Msg("could not resolve username")
	}
	c.SetSession(sess)
	return sess, nil
}

// Verify fetches the signed-in user's profile, confirming the stored
// session is still accepted.
func (c *Client) Verify() (Profile, error) {
	if !c.IsAuthenticated() {
		return Profile{}, ErrNotAuthenticated
	}
	c.mu.RLock()
	info, err := c.api.User.GetInfo(lastfm.P{})
	c.mu.RUnlock()
	if err != nil {
		return Profile{}, fmt.Errorf("get user info: %w", err)
	}
	return Profile{Name: info.Name, URL: info.Url, PlayCount: info.PlayCount}, nil
}
