package sheets

import (
	"encoding/json"
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Scopes requested for the service account. Drive is needed to resolve a
// spreadsheet by name.
var Scopes = []string{
	sheetsapi.SpreadsheetsScope,
	drive.DriveScope,
}

var ErrCredentials = errors.New("invalid service account credentials")

// Credentials is the subset of a Google service-account key file we check
// before handing it to the oauth2 library.
type Credentials struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

func ParseCredentials(data []byte) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	if c.Type != "service_account" {
		return Credentials{}, fmt.Errorf("%w: type %q", ErrCredentials, c.Type)
	}
	if c.ClientEmail == "" || c.PrivateKey == "" {
		return Credentials{}, fmt.Errorf("%w: client_email and private_key are required", ErrCredentials)
	}
	if c.TokenURI == "" {
		c.TokenURI = google.JWTTokenURL
	}
	return c, nil
}

// jwtConfig builds the two-legged grant for the key file. The oauth2 library
// only parses the private key on the first token request, so it is checked
// here to fail at startup instead.
func jwtConfig(data []byte) (*jwt.Config, error) {
	creds, err := ParseCredentials(data)
	if err != nil {
		return nil, err
	}
	if _, err := jwtlib.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	conf, err := google.JWTConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	return conf, nil
}
