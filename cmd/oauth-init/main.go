// Command oauth-init runs the installed-app OAuth flow once and stores the
// resulting token for the Google Sheets exporter used by ubillity-worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"ubillity/internal/cli"
	"ubillity/internal/config"
	"ubillity/internal/log"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentSheets)

	if err := run(cfg, logger); err != nil {
		logger.Error("OAuth initialization failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	clientJSON, err := clientCredentials(cfg)
	if err != nil {
		return err
	}

	oauthCfg, err := google.ConfigFromJSON(clientJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}

	// The redirect URI must be listed on the OAuth client.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	oauthCfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	ctx, stop := cli.SignalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		if msg := r.URL.Query().Get("error"); msg != "" {
			http.Error(w, "OAuth error: "+msg, http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", msg)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		codeCh <- r.URL.Query().Get("code")
	})
	srv := &http.Server{Addr: ":" + redirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer srv.Close()

	logger.Info("Open this URL to authorize", "url", oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	outFile := cfg.GoogleOAuthTokenFile
	if outFile == "" {
		outFile = "token.json"
	}
	if err := writeToken(outFile, tok); err != nil {
		return err
	}
	logger.Info("Saved OAuth token", "path", outFile)
	return nil
}

func clientCredentials(cfg *config.Config) ([]byte, error) {
	if raw := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); raw != "" {
		return []byte(raw), nil
	}
	if cfg.GoogleOAuthClientFile == "" {
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read client file: %w", err)
	}
	return b, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
