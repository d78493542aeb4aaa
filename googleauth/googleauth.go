// Package googleauth loads and validates Google service account
// credentials and builds authenticated HTTP clients for the Sheets and
// Drive APIs.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
)

// OAuth scopes requested by the manager.
const (
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDriveFile    = "https://www.googleapis.com/auth/drive.file"
)

var (
	// ErrCredentialsNotFound is returned when the credentials file does
	// not exist at the configured path.
	ErrCredentialsNotFound = errors.New("credentials file not found")

	// ErrInvalidCredentials is returned when the credentials file is not
	// a valid service account key.
	ErrInvalidCredentials = errors.New("invalid service account credentials")
)

// requiredFields are the service account key fields the APIs need.
// A key missing any of these was truncated or is the wrong kind of file.
var requiredFields = []string{"type", "project_id", "private_key_id", "private_key", "client_email"}

// Credentials holds a validated service account key.
type Credentials struct {
	// Email is the service account's client email. Spreadsheets and
	// Drive folders must be shared with this address.
	Email string

	raw []byte
}

// Load reads and validates the service account key at path.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, path)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var key map[string]any
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidCredentials, err)
	}

	for _, field := range requiredFields {
		v, ok := key[field].(string)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidCredentials, field)
		}
	}
	if key["type"] != "service_account" {
		return nil, fmt.Errorf("%w: type is %q, want %q", ErrInvalidCredentials, key["type"], "service_account")
	}

	return &Credentials{
		Email: key["client_email"].(string),
		raw:   data,
	}, nil
}

// Client returns an HTTP client that authenticates requests with the
// service account, limited to the given scopes.
func (c *Credentials) Client(ctx context.Context, scopes ...string) (*http.Client, error) {
	cfg, err := google.JWTConfigFromJSON(c.raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return cfg.Client(ctx), nil
}

// ShareHint explains how to resolve a 403/404 from Sheets or Drive:
// the resource must be shared with the service account's email.
func (c *Credentials) ShareHint() string {
	return fmt.Sprintf("share the spreadsheet and Drive folder with %s", c.Email)
}
