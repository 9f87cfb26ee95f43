package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/courier/internal/config"
	"github.com/zulandar/courier/internal/credential"
	"github.com/zulandar/courier/internal/mailer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/term"
)

const oauthTimeout = 5 * time.Minute

func newOAuthTokenCmd() *cobra.Command {
	var (
		configPath   string
		clientID     string
		clientSecret string
		store        string
	)

	cmd := &cobra.Command{
		Use:   "oauth-token",
		Short: "Obtain a Gmail refresh token",
		Long: "Runs the OAuth2 consent flow in the browser on a loopback redirect and prints the\n" +
			"refresh token for mail.gmail.refresh_token, or stores it in the OS keyring with --store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOAuthToken(cmd, configPath, clientID, clientSecret, store)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to courier config file (for client id/secret)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID (overrides config)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (overrides config; prompted when missing)")
	cmd.Flags().StringVar(&store, "store", "", "keyring entry to store the token under instead of printing it")
	return cmd
}

func runOAuthToken(cmd *cobra.Command, configPath, clientID, clientSecret, store string) error {
	out := cmd.OutOrStdout()

	// The config may be incomplete at this point; only the gmail section matters.
	if cfg, err := config.LoadUnchecked(configPath); err == nil {
		if err := credential.ResolveAll(&cfg.Mail.Gmail.ClientSecret); err != nil {
			return err
		}
		if clientID == "" {
			clientID = cfg.Mail.Gmail.ClientID
		}
		if clientSecret == "" {
			clientSecret = cfg.Mail.Gmail.ClientSecret
		}
	}
	if clientID == "" {
		return fmt.Errorf("oauth-token: client id is required (--client-id or mail.gmail.client_id)")
	}
	if clientSecret == "" {
		secret, err := promptSecret(out, "Client secret: ")
		if err != nil {
			return err
		}
		clientSecret = secret
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), oauthTimeout)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoints.Google,
		Scopes:       []string{mailer.GmailSendScope},
	}
	tok, err := loopbackFlow(ctx, conf, func(url string) {
		fmt.Fprintf(out, "Open this URL in your browser and approve access:\n\n  %s\n\n", url)
	})
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("oauth-token: no refresh token returned; revoke the app's access and try again")
	}

	if store != "" {
		if err := credential.Set(store, tok.RefreshToken); err != nil {
			return err
		}
		fmt.Fprintf(out, "Refresh token stored. Set mail.gmail.refresh_token to %q\n", credential.Prefix+store)
		return nil
	}
	fmt.Fprintf(out, "Refresh token:\n%s\n", tok.RefreshToken)
	return nil
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(out io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("oauth-token: client secret is required (--client-secret or mail.gmail.client_secret)")
	}
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("oauth-token: read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// loopbackFlow runs the authorization code flow with a redirect to a
// temporary listener on 127.0.0.1. show receives the consent URL.
func loopbackFlow(ctx context.Context, conf *oauth2.Config, show func(url string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("oauth-token: listen: %w", err)
	}
	defer ln.Close()

	cfg := *conf
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			res.err = errors.New("oauth-token: state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("oauth-token: authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("oauth-token: no authorization code in callback")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorization received. You can close this window.")
		}
		select {
		case done <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	show(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("oauth-token: waiting for authorization: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("oauth-token: exchange code: %w", err)
		}
		return tok, nil
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth-token: state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
