package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/jwt"
)

// GmailSendScope is the OAuth2 scope needed to send mail.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

const defaultGmailAPI = "https://gmail.googleapis.com"

// ErrTokenExpired means the Gmail refresh token was revoked or expired and a
// new one must be issued with the oauth-token command.
var ErrTokenExpired = errors.New("mailer: gmail: refresh token expired or revoked")

// Gmail sends mail through the Gmail REST API, authenticated either with an
// OAuth2 refresh token or a service account with domain-wide delegation.
type Gmail struct {
	client  *http.Client
	apiBase string
	user    string
}

// GmailOpts holds parameters for creating a Gmail sender. Either the
// ClientID/ClientSecret/RefreshToken triple or ServiceAccountEmail/PrivateKey
// must be set.
type GmailOpts struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	ServiceAccountEmail string
	PrivateKey          []byte // PEM
	Subject             string // mailbox to impersonate with a service account

	// For testing: override endpoints and the base HTTP client.
	TokenURL   string
	APIBase    string
	HTTPClient *http.Client
}

// NewGmail creates a Gmail sender.
func NewGmail(opts GmailOpts) (*Gmail, error) {
	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	endpoint := endpoints.Google
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}

	var client *http.Client
	user := "me"
	switch {
	case opts.RefreshToken != "":
		if opts.ClientID == "" || opts.ClientSecret == "" {
			return nil, fmt.Errorf("mailer: gmail: client id and secret are required with a refresh token")
		}
		cfg := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{GmailSendScope},
		}
		client = cfg.Client(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken})
	case opts.ServiceAccountEmail != "":
		if len(opts.PrivateKey) == 0 {
			return nil, fmt.Errorf("mailer: gmail: private key is required with a service account")
		}
		cfg := &jwt.Config{
			Email:      opts.ServiceAccountEmail,
			PrivateKey: opts.PrivateKey,
			Scopes:     []string{GmailSendScope},
			TokenURL:   endpoint.TokenURL,
			Subject:    opts.Subject,
		}
		client = cfg.Client(ctx)
		if opts.Subject != "" {
			user = opts.Subject
		}
	default:
		return nil, fmt.Errorf("mailer: gmail: refresh token or service account is required")
	}

	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = defaultGmailAPI
	}
	return &Gmail{client: client, apiBase: strings.TrimRight(apiBase, "/"), user: user}, nil
}

// Name identifies the transport in logs and the delivery log.
func (g *Gmail) Name() string { return "gmail" }

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

type gmailError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send uploads msg as a raw RFC 5322 message.
func (g *Gmail) Send(ctx context.Context, msg *Message) error {
	raw, err := msg.Build()
	if err != nil {
		return err
	}
	body, err := json.Marshal(gmailSendRequest{Raw: base64.URLEncoding.EncodeToString(raw)})
	if err != nil {
		return fmt.Errorf("mailer: gmail: encode: %w", err)
	}

	url := fmt.Sprintf("%s/gmail/v1/users/%s/messages/send", g.apiBase, g.user)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: gmail: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode == "invalid_grant" {
			return ErrTokenExpired
		}
		return fmt.Errorf("mailer: gmail: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ge gmailError
		if json.Unmarshal(data, &ge) == nil && ge.Error.Message != "" {
			return fmt.Errorf("mailer: gmail: send: HTTP %d: %s", resp.StatusCode, ge.Error.Message)
		}
		return fmt.Errorf("mailer: gmail: send: HTTP %d", resp.StatusCode)
	}
	return nil
}

// ServiceAccount is the part of a Google service account key file the Gmail
// sender needs.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount reads a service account JSON key file.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("mailer: gmail: parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("mailer: gmail: service account key needs client_email and private_key")
	}
	return &sa, nil
}
