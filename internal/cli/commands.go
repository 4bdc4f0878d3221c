package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/notify"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
	"github.com/llehouerou/scrobblesync/internal/server"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

func (r *runner) setup(c *cli.Context) error {
	e := r.env
	if err := e.requireLastfm(); err != nil {
		return err
	}
	if !e.provider.IsAuthorized() {
		if err := r.authorize(c); err != nil {
			return err
		}
	}
	if !e.client.IsAuthenticated() {
		if err := r.login(c); err != nil {
			return err
		}
	}
	if err := e.store.SetOnboarded(true); err != nil {
		return err
	}
	fmt.Fprintln(r.out, successStyle.Render("Setup complete, run 'scrobblesync sync' to scrobble"))
	return nil
}

func (r *runner) login(c *cli.Context) error {
	e := r.env
	if err := e.requireLastfm(); err != nil {
		return err
	}

	var (
		sess lastfm.Session
		err  error
	)
	if c.Bool("desktop") {
		sess, err = r.loginDesktop()
	} else {
		auth := lastfm.NewAuthenticator(e.client, e.cfg.GetLastfmConfig().CallbackPort)
		err = r.spin(c.Context, "Waiting for Last.fm authorization in your browser...", func(ctx context.Context) error {
			var authErr error
			sess, authErr = auth.Authenticate(ctx)
			return authErr
		})
	}
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpLastfmLogin, err))
	}

	if err := e.saveSession(sess); err != nil {
		return errors.New(errmsg.Format(errmsg.OpLastfmLogin, err))
	}
	fmt.Fprintf(r.out, "Signed in to Last.fm as %s\n", titleStyle.Render(sess.Name))
	return nil
}

// loginDesktop runs the out-of-band token flow: the user approves the
// token in a browser, then confirms here.
func (r *runner) loginDesktop() (lastfm.Session, error) {
	e := r.env
	token, authURL, err := e.client.DesktopToken()
	if err != nil {
		return lastfm.Session{}, err
	}
	fmt.Fprintf(r.out, "Open this page and allow access:\n  %s\n", authURL)
	if err := lastfm.OpenBrowser(authURL); err != nil {
		logging.Debug().Err(err).Msg("could not open browser")
	}
	ok, err := r.confirm("Did you allow access on Last.fm?")
	if err != nil {
		return lastfm.Session{}, err
	}
	if !ok {
		return lastfm.Session{}, lastfm.ErrUserCancelled
	}
	return e.client.LoginWithDesktopToken(token)
}

func (r *runner) logout(_ *cli.Context) error {
	e := r.env
	name := e.client.Username()
	if err := e.dropSession(); err != nil {
		return errors.New(errmsg.Format(errmsg.OpLastfmLogout, err))
	}
	if name == "" {
		fmt.Fprintln(r.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(r.out, "Signed out %s\n", name)
	return nil
}

func (r *runner) authorize(c *cli.Context) error {
	p := r.env.provider
	var granted bool
	err := r.spin(c.Context, fmt.Sprintf("Waiting for %s authorization...", p.Name()), func(ctx context.Context) error {
		var authErr error
		granted, authErr = p.RequestAuthorization(ctx)
		return authErr
	})
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpProviderAuthorize, err))
	}
	if !granted {
		return errors.New(errmsg.Format(errmsg.OpProviderAuthorize, errors.New("access was not granted")))
	}
	fmt.Fprintf(r.out, "%s history access granted\n", p.Name())
	return nil
}

func (r *runner) sync(c *cli.Context) error {
	e := r.env
	var sum syncer.Summary
	err := r.spin(c.Context, "Syncing...", func(ctx context.Context) error {
		var syncErr error
		sum, syncErr = e.svc.SyncNow(ctx)
		return syncErr
	})
	e.checkSession(err)
	fmt.Fprintln(r.out, formatSummary(sum))
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpSync, err))
	}
	return nil
}

func (r *runner) retry(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("usage: scrobblesync retry <id> (see 'scrobblesync history --filter failed')", 2)
	}
	e := r.env
	var sum syncer.Summary
	err := r.spin(c.Context, "Resubmitting...", func(ctx context.Context) error {
		var retryErr error
		sum, retryErr = e.svc.RetrySingle(ctx, id)
		return retryErr
	})
	e.checkSession(err)
	if err != nil {
		return errors.New(errmsg.FormatWith(errmsg.OpRetry, id, err))
	}
	fmt.Fprintln(r.out, formatSummary(sum))
	return nil
}

func (r *runner) retryAll(c *cli.Context) error {
	e := r.env
	if len(e.svc.Filter(scrobble.FilterFailed)) == 0 {
		fmt.Fprintln(r.out, "No failed scrobbles")
		return nil
	}
	var sum syncer.Summary
	err := r.spin(c.Context, "Resubmitting failed scrobbles...", func(ctx context.Context) error {
		var retryErr error
		sum, retryErr = e.svc.RetryAllFailed(ctx)
		return retryErr
	})
	e.checkSession(err)
	fmt.Fprintln(r.out, formatSummary(sum))
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpRetryAll, err))
	}
	return nil
}

func (r *runner) history(c *cli.Context) error {
	f, ok := scrobble.ParseFilter(c.String("filter"))
	if !ok {
		return cli.Exit("filter must be all, pending or failed", 2)
	}
	records := r.env.svc.Filter(f)
	if limit := c.Int("limit"); limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	printRecords(r.out, records, r.env.now())
	return nil
}

func (r *runner) status(c *cli.Context) error {
	e := r.env
	now := e.now()

	if e.client.IsAuthenticated() {
		fmt.Fprintf(r.out, "%s signed in as %s\n", titleStyle.Render("Last.fm:"), e.client.Username())
	} else {
		fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render("Last.fm:"), pendingStyle.Render("not signed in"))
	}
	access := successStyle.Render("authorized")
	if !e.provider.IsAuthorized() {
		access = pendingStyle.Render("not authorized")
	}
	fmt.Fprintf(r.out, "%s %s (%s)\n", titleStyle.Render("Provider:"), e.provider.Name(), access)

	if c.Bool("verify") {
		if err := r.verify(); err != nil {
			return err
		}
	}

	at, ok, err := e.svc.LastSync()
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpStateLoad, err))
	}
	fmt.Fprintln(r.out, describeLastSync(at, ok, now))

	st := e.svc.Stats()
	printStats(r.out, st)
	if len(st.Recent) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, titleStyle.Render("Recent"))
		printRecords(r.out, st.Recent, now)
	}
	return nil
}

func (r *runner) verify() error {
	e := r.env
	if !e.client.IsAuthenticated() {
		return errors.New(errmsg.Format(errmsg.OpLastfmVerify, lastfm.ErrNotAuthenticated))
	}
	profile, err := e.client.Verify()
	if err != nil {
		e.checkSession(err)
		return errors.New(errmsg.Format(errmsg.OpLastfmVerify, err))
	}
	fmt.Fprintf(r.out, "Session verified: %s, %s plays (%s)\n", profile.Name, profile.PlayCount, profile.URL)
	return nil
}

func (r *runner) reset(c *cli.Context) error {
	if !c.Bool("yes") {
		ok, err := r.confirm("Delete the local scrobble log and sign out of Last.fm?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(r.out, "Cancelled")
			return nil
		}
	}
	e := r.env
	if err := e.store.Reset(); err != nil {
		return errors.New(errmsg.Format(errmsg.OpStateReset, err))
	}
	e.client.ClearSession()
	fmt.Fprintln(r.out, "Local data deleted")
	return nil
}

func (r *runner) daemon(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.serve(ctx)
}

// serve runs the background loop, the status server and the notifier
// until ctx is done.
func (r *runner) serve(ctx context.Context) error {
	e := r.env
	sc := e.cfg.GetSyncConfig()
	log := logging.With().Str("component", "daemon").Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 1)

	if e.cfg.DesktopNotifications() {
		n, err := notify.New()
		if err != nil {
			log.Warn().Err(err).Msg("desktop notifications unavailable")
			n = notify.Disabled()
		}
		sub := e.svc.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			notify.Watch(ctx, n, sub)
		}()
	}

	sessionSub := e.svc.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sessionSub.Done:
				return
			case ev := <-sessionSub.Error:
				e.checkSession(ev.Err)
			}
		}
	}()

	var srv *server.Server
	if addr := e.cfg.Server.Listen; addr != "" {
		srv = server.New(e.svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(addr); err != nil {
				select {
				case errc <- errors.New(errmsg.Format(errmsg.OpServerStart, err)):
				default:
				}
			}
		}()
	}

	if sc.BackgroundEnabled() {
		log.Info().Dur("interval", sc.Interval()).Msg("background sync started")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.svc.Run(ctx, sc.Interval())
		}()
	} else {
		log.Info().Msg("background sync disabled, waiting for POST /sync")
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("status server shutdown")
		}
		cancel()
	}
	_ = e.svc.Close()
	wg.Wait()
	return err
}
