package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/llehouerou/scrobblesync/internal/config"
	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/history"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/state"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

// errLastfmNotConfigured is returned by commands that talk to Last.fm
// when no API credentials are configured.
var errLastfmNotConfigured = errors.New(
	"Last.fm API credentials missing: set lastfm.api_key and lastfm.api_secret " +
		"in config.toml or SCROBBLESYNC_LASTFM_API_KEY / SCROBBLESYNC_LASTFM_API_SECRET")

// env holds the collaborators a command runs against.
type env struct {
	cfg      *config.Config
	store    state.Interface
	client   *lastfm.Client
	provider history.Provider
	svc      *syncer.Service
	out      io.Writer
	now      func() time.Time
	logFile  *os.File
}

// openEnv loads configuration, sets up logging, opens the state database
// and wires the Last.fm client, the history provider and the sync service.
func openEnv(opts options, out io.Writer) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}

	logFile, err := setupLogging(cfg.GetLogConfig(), opts)
	if err != nil {
		return nil, err
	}

	store, err := state.Open()
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, errors.New(errmsg.Format(errmsg.OpStateOpen, err))
	}
	e, err := newEnv(cfg, store, out)
	if err != nil {
		_ = store.Close()
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	e.logFile = logFile
	return e, nil
}

// setupLogging initializes the global logger. Command-line flags win over
// the configuration. The returned file, if any, must be closed on exit.
func setupLogging(lc config.LogConfig, opts options) (*os.File, error) {
	if opts.logLevel != "" {
		lc.Level = opts.logLevel
	}
	if opts.verbose {
		lc.Level = "debug"
	}

	var out io.Writer = os.Stderr
	var f *os.File
	if lc.File || opts.logFile {
		var err error
		f, err = logging.OpenDailyFile(time.Now())
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	logging.Init(logging.Config{Level: lc.Level, Format: lc.Format, Output: out})
	return f, nil
}

// newEnv wires an env around an already opened store.
func newEnv(cfg *config.Config, store state.Interface, out io.Writer) (*env, error) {
	e := &env{cfg: cfg, store: store, out: out, now: time.Now}

	lf := cfg.GetLastfmConfig()
	e.client = lastfm.New(lastfm.Config{
		APIKey:            lf.APIKey,
		APISecret:         lf.APISecret,
		BaseURL:           lf.BaseURL,
		AuthURL:           lf.AuthURL,
		Timeout:           lf.Timeout(),
		RequestsPerSecond: lf.RequestsPerSecond,
	})
	sess, err := store.LoadSession()
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpStateLoad, err))
	}
	if sess != nil {
		e.client.SetSession(lastfm.Session{Name: sess.Username, Key: sess.SessionKey, Subscriber: sess.Subscriber})
	}

	e.provider, err = newProvider(cfg.GetProviderConfig(), store)
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpProviderOpen, err))
	}

	e.svc, err = syncer.New(syncer.Config{
		Provider:     e.provider,
		Submitter:    e.client,
		Store:        store,
		LogRetention: cfg.GetSyncConfig().Retention(),
	})
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpStateLoad, err))
	}
	return e, nil
}

func newProvider(cfg config.ProviderConfig, tokens history.TokenStore) (history.Provider, error) {
	switch cfg.Kind {
	case config.ProviderSpotify:
		return history.NewSpotify(history.SpotifyConfig{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectPort: cfg.RedirectPort,
			Limit:        cfg.Limit,
			OpenURL:      lastfm.OpenBrowser,
		}, tokens)
	case config.ProviderFile:
		return history.NewFile(cfg.File), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want %q or %q)", cfg.Kind, config.ProviderSpotify, config.ProviderFile)
	}
}

// requireLastfm fails when no API credentials are configured.
func (e *env) requireLastfm() error {
	if !e.cfg.HasLastfmConfig() {
		return errLastfmNotConfigured
	}
	return nil
}

// saveSession installs and persists a freshly obtained session.
func (e *env) saveSession(sess lastfm.Session) error {
	e.client.SetSession(sess)
	return e.store.SaveSession(state.LastfmSession{
		Username:   sess.Name,
		SessionKey: sess.Key,
		Subscriber: sess.Subscriber,
		LinkedAt:   e.now(),
	})
}

// dropSession forgets the Last.fm session locally.
func (e *env) dropSession() error {
	e.client.ClearSession()
	return e.store.DeleteSession()
}

// checkSession signs out when Last.fm reports the session key revoked.
func (e *env) checkSession(err error) {
	if !lastfm.IsSessionInvalid(err) {
		return
	}
	logging.Warn().Msg("Last.fm session was revoked, signing out")
	if dropErr := e.dropSession(); dropErr != nil {
		logging.Error().Err(dropErr).Msg("failed to delete revoked session")
	}
	fmt.Fprintln(e.out, failedStyle.Render("Last.fm session expired, run 'scrobblesync login' again"))
}

func (e *env) Close() error {
	var errs []error
	if e.svc != nil {
		errs = append(errs, e.svc.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if e.logFile != nil {
		errs = append(errs, e.logFile.Close())
	}
	return errors.Join(errs...)
}
