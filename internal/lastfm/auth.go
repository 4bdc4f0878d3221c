package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	// DefaultCallbackPort is the port used for the local auth callback server.
	DefaultCallbackPort = 9847

	// DefaultAuthTimeout bounds how long Authenticate waits for the browser.
	DefaultAuthTimeout = 5 * time.Minute
)

// AuthServer receives the browser redirect that carries the auth token.
type AuthServer struct {
	server    *http.Server
	listener  net.Listener
	tokenChan chan string
	done      chan struct{}
}

// StartAuthServer starts a local HTTP server on port (0 picks a free one)
// to receive the auth callback.
func StartAuthServer(port int) (*AuthServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}

	tokenChan := make(chan string, 1)
	done := make(chan struct{})

	mux := http.NewServeMux()
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	as := &AuthServer{
		server:    server,
		listener:  listener,
		tokenChan: tokenChan,
		done:      done,
	}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")

		w.Header().Set("Content-Type", "text/html")
		if token != "" {
			fmt.Fprint(w, callbackPage("Authorization Successful!", "You can close this window and return to your terminal."))
		} else {
			fmt.Fprint(w, callbackPage("Authorization Failed", "No token received. Please try again."))
		}

		// first callback wins
		select {
		case tokenChan <- token:
		default:
		}
	})

	go func() {
		_ = server.Serve(listener)
		close(done)
	}()

	return as, nil
}

func callbackPage(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>ScrobbleSync - Last.fm Authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, body)
}

// CallbackURL is the URL Last.fm should redirect to.
func (as *AuthServer) CallbackURL() string {
	port := as.listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// TokenChan returns the channel that receives the auth token.
func (as *AuthServer) TokenChan() <-chan string {
	return as.tokenChan
}

// Shutdown stops the auth server.
func (as *AuthServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = as.server.Shutdown(ctx)
	<-as.done
}

// Authenticator runs the browser sign-in flow. Only one flow may run at a
// time.
type Authenticator struct {
	Client  *Client
	Port    int
	Timeout time.Duration

	// OpenURL shows the auth page to the user. Defaults to OpenBrowser.
	OpenURL func(string) error

	inProgress atomic.Bool
}

// NewAuthenticator returns an Authenticator for client listening on port.
func NewAuthenticator(client *Client, port int) *Authenticator {
	return &Authenticator{
		Client:  client,
		Port:    port,
		Timeout: DefaultAuthTimeout,
		OpenURL: OpenBrowser,
	}
}

// InProgress reports whether a sign-in flow is running.
func (a *Authenticator) InProgress() bool { return a.inProgress.Load() }

// Authenticate opens the Last.fm auth page, waits for the callback and
// exchanges the token for a session, which is installed on the client.
func (a *Authenticator) Authenticate(ctx context.Context) (Session, error) {
	if !a.inProgress.CompareAndSwap(false, true) {
		return Session{}, ErrAuthInProgress
	}
	defer a.inProgress.Store(false)

	srv, err := StartAuthServer(a.Port)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer srv.Shutdown()

	authURL, err := a.Client.AuthURL(srv.CallbackURL())
	if err != nil {
		return Session{}, err
	}
	open := a.OpenURL
	if open == nil {
		open = OpenBrowser
	}
	if err := open(authURL); err != nil {
		a.Client.log.Warn().Err(err).Str("url", authURL).Msg("could not open browser")
	}

	token, err := a.WaitForToken(ctx, srv.TokenChan())
	if err != nil {
		return Session{}, err
	}
	return a.Client.GetSession(ctx, token)
}

// WaitForToken blocks until the callback delivers a token, ctx is done or
// the timeout elapses. It resolves exactly once: a token, ErrUserCancelled
// or ErrNoToken.
func (a *Authenticator) WaitForToken(ctx context.Context, tokens <-chan string) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case token := <-tokens:
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrNoToken, ctx.Err())
		}
		return "", fmt.Errorf("%w: %w", ErrUserCancelled, ctx.Err())
	case <-timer.C:
		return "", fmt.Errorf("%w: timed out after %s", ErrNoToken, timeout)
	}
}

// OpenBrowser opens the given URL in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
