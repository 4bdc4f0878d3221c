package history

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/llehouerou/scrobblesync/internal/logging"
)

const (
	spotifyProvider = "spotify"

	// DefaultSpotifyPort is the local port of the OAuth redirect.
	DefaultSpotifyPort = 8089

	// MaxSpotifyLimit is the most plays the recently-played endpoint returns.
	MaxSpotifyLimit = 50
)

// TokenStore persists the serialized OAuth token.
type TokenStore interface {
	LoadToken(provider string) ([]byte, error)
	SaveToken(provider string, data []byte) error
}

// SpotifyConfig configures the Spotify provider.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectPort int
	Limit        int

	// APIBaseURL overrides the Web API location. Tests use it.
	APIBaseURL string
	// OpenURL shows the consent page to the user.
	OpenURL func(string) error
}

// Spotify reads the user's recently played tracks from the Spotify Web API.
type Spotify struct {
	cfg    SpotifyConfig
	auth   *spotifyauth.Authenticator
	tokens TokenStore
	log    zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewSpotify returns a Spotify provider, loading a previously granted token
// from tokens.
func NewSpotify(cfg SpotifyConfig, tokens TokenStore) (*Spotify, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client ID and secret must be provided")
	}
	if cfg.RedirectPort == 0 {
		cfg.RedirectPort = DefaultSpotifyPort
	}
	if cfg.Limit <= 0 || cfg.Limit > MaxSpotifyLimit {
		cfg.Limit = MaxSpotifyLimit
	}

	s := &Spotify{
		cfg: cfg,
		auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", cfg.RedirectPort)),
			spotifyauth.WithScopes(spotifyauth.ScopeUserReadRecentlyPlayed),
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
		),
		tokens: tokens,
		log:    logging.With().Str("component", "spotify").Logger(),
	}

	data, err := tokens.LoadToken(spotifyProvider)
	if err != nil {
		return nil, fmt.Errorf("load spotify token: %w", err)
	}
	if len(data) > 0 {
		var tok oauth2.Token
		if err := json.Unmarshal(data, &tok); err != nil {
			s.log.Warn().Err(err).Msg("ignoring unreadable stored token")
		} else {
			s.token = &tok
		}
	}
	return s, nil
}

func (s *Spotify) Name() string { return spotifyProvider }

func (s *Spotify) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil && (s.token.Valid() || s.token.RefreshToken != "")
}

// RequestAuthorization runs the OAuth code flow through a local redirect
// server and stores the resulting token.
func (s *Spotify) RequestAuthorization(ctx context.Context) (bool, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.RedirectPort))
	if err != nil {
		return false, fmt.Errorf("listen on port %d: %w", s.cfg.RedirectPort, err)
	}

	state := uuid.NewString()
	type result struct {
		tok *oauth2.Token
		err error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.NotFound(w, r)
			return
		}
		tok, err := s.auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Couldn't get token", http.StatusForbidden)
		} else {
			fmt.Fprint(w, "Login Completed! You can now close this window.")
		}
		select {
		case results <- result{tok, err}:
		default:
		}
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = server.Serve(listener) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	url := s.auth.AuthURL(state)
	if s.cfg.OpenURL != nil {
		if err := s.cfg.OpenURL(url); err != nil {
			s.log.Warn().Err(err).Str("url", url).Msg("could not open browser")
		}
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return false, fmt.Errorf("spotify authorization: %w", res.err)
		}
		if err := s.storeToken(res.tok); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (s *Spotify) storeToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode spotify token: %w", err)
	}
	if err := s.tokens.SaveToken(spotifyProvider, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

func (s *Spotify) client(ctx context.Context) (*spotify.Client, *oauth2.Token) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	var opts []spotify.ClientOption
	if s.cfg.APIBaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.cfg.APIBaseURL))
	}
	return spotify.New(s.auth.Client(ctx, tok), opts...), tok
}

// FetchRecent returns the most recently played tracks. Every Spotify play
// carries its own timestamp, so none needs estimating.
func (s *Spotify) FetchRecent(ctx context.Context) ([]Play, error) {
	if !s.IsAuthorized() {
		return nil, ErrNotAuthorized
	}

	client, before := s.client(ctx)
	items, err := client.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(s.cfg.Limit)})
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		return nil, fmt.Errorf("fetch recently played: %w", err)
	}

	// persist a refreshed token
	if after, err := client.Token(); err == nil && after != nil && after.AccessToken != before.AccessToken {
		if err := s.storeToken(after); err != nil {
			s.log.Warn().Err(err).Msg("could not persist refreshed token")
		}
	}

	plays := make([]Play, 0, len(items))
	for _, item := range items {
		plays = append(plays, playFromSpotify(item))
	}
	s.log.Debug().Int("plays", len(plays)).Msg("fetched recently played")
	return plays, nil
}

func playFromSpotify(item spotify.RecentlyPlayedItem) Play {
	t := item.Track
	playedAt := item.PlayedAt

	p := Play{
		Title:      t.Name,
		Album:      t.Album.Name,
		LastPlayed: &playedAt,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
	}
	if len(t.Artists) > 0 {
		p.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		p.ArtworkURL = t.Album.Images[0].URL
	}
	// a track id alone would collapse repeated plays
	if t.ID != "" {
		p.SourceID = "spotify:" + string(t.ID) + "@" + strconv.FormatInt(playedAt.Unix(), 10)
	}
	return p
}

var _ Provider = (*Spotify)(nil)
