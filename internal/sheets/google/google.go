package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ubillity/internal/core"
	ports "ubillity/internal/sheets"
)

var _ ports.BillExporter = (*Client)(nil)

// Config selects the spreadsheet and the credentials used to reach it.
// A service account wins over an OAuth user token when both are set.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Bills"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service from a service account, or
// from an OAuth client plus the user token written by oauth-init.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" && cfg.OAuthTokenFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return serviceAccountService(ctx, []byte(serviceAccountJSON))
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return serviceAccountService(ctx, b)
	case cfg.OAuthClientFile != "" && cfg.OAuthTokenFile != "":
		slog.InfoContext(ctx, "Using OAuth user token", "token_file", cfg.OAuthTokenFile)
		return oauthService(ctx, cfg.OAuthClientFile, cfg.OAuthTokenFile)
	default:
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or GOOGLE_OAUTH_CLIENT_FILE with GOOGLE_OAUTH_TOKEN_FILE)")
	}
}

func serviceAccountService(ctx context.Context, credentialsJSON []byte) (*gsheet.Service, error) {
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func oauthService(ctx context.Context, clientFile, tokenFile string) (*gsheet.Service, error) {
	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open oauth token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("oauth token file has neither access nor refresh token")
	}
	return &tok, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportBills clears the bill columns of the sheet and writes a fresh snapshot.
func (c *Client) ExportBills(ctx context.Context, bills []core.Bill) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!%s", c.sheetName, ports.Columns)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: toValues(ports.Rows(bills))}
	writeRange := fmt.Sprintf("%s!A1", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", writeRange, err)
	}

	slog.InfoContext(ctx, "Bill snapshot written to sheet",
		"spreadsheet_id", c.spreadsheetID,
		"sheet", c.sheetName,
		"bills", len(bills))
	return nil
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}
