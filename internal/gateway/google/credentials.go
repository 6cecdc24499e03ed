package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/forms.body",
}

// CredentialsProvider turns the OAuth client file and a previously granted
// token file into a refreshing token source. It never runs a consent flow.
type CredentialsProvider struct {
	CredentialsFile string
	TokenFile       string
}

// storedToken accepts both the oauth2.Token layout and the authorized-user
// layout written by other Google client libraries, which also carries the
// client identity.
type storedToken struct {
	AccessToken  string    `json:"access_token,omitempty"`
	Token        string    `json:"token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	TokenURI     string    `json:"token_uri,omitempty"`
}

func (s storedToken) oauth2() *oauth2.Token {
	access := s.AccessToken
	if access == "" {
		access = s.Token
	}
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry,
	}
}

type clientSecrets struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURI     string `json:"token_uri"`
	AuthURI      string `json:"auth_uri"`
}

// clientFile is the OAuth client download; either section may be present.
type clientFile struct {
	Installed *clientSecrets `json:"installed"`
	Web       *clientSecrets `json:"web"`
}

// readClient loads the client identity from the credentials file. A missing
// file yields nil so the token file's own identity can be used instead.
func readClient(path string) (*clientSecrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials file %s: %w", path, err)
	}
	var f clientFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	switch {
	case f.Installed != nil:
		return f.Installed, nil
	case f.Web != nil:
		return f.Web, nil
	}
	return nil, fmt.Errorf("credentials file %s has no installed or web client", path)
}

// oauthConfig builds a refresh-only config. Refreshing needs the client
// identity and the token endpoint, never a redirect URL.
func oauthConfig(client *clientSecrets, stored storedToken) (*oauth2.Config, error) {
	var id, secret, tokenURI, authURI string
	if client != nil {
		id, secret, tokenURI, authURI = client.ClientID, client.ClientSecret, client.TokenURI, client.AuthURI
	}
	if id == "" {
		id, secret = stored.ClientID, stored.ClientSecret
	}
	if tokenURI == "" {
		tokenURI = stored.TokenURI
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("no OAuth client id in the credentials or token file")
	}
	if tokenURI == "" {
		tokenURI = googleoauth.Endpoint.TokenURL
	}
	if authURI == "" {
		authURI = googleoauth.Endpoint.AuthURL
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     oauth2.Endpoint{AuthURL: authURI, TokenURL: tokenURI},
		Scopes:       Scopes,
	}, nil
}

func (p CredentialsProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	client, err := readClient(p.CredentialsFile)
	if err != nil {
		return nil, outcome.Credential(err)
	}
	tokenJSON, err := os.ReadFile(p.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, outcome.Credential(fmt.Errorf("token file %s not found; authorize interactively first", p.TokenFile))
		}
		return nil, outcome.Credential(err)
	}
	var stored storedToken
	if err := json.Unmarshal(tokenJSON, &stored); err != nil {
		return nil, outcome.Credential(fmt.Errorf("parse token file: %w", err))
	}
	cfg, err := oauthConfig(client, stored)
	if err != nil {
		return nil, outcome.Credential(err)
	}
	initial := stored.oauth2()
	if !initial.Valid() && strings.TrimSpace(initial.RefreshToken) == "" {
		return nil, outcome.Credential(errors.New("token is expired and has no refresh token"))
	}
	ts := oauth2.ReuseTokenSource(initial, cfg.TokenSource(ctx, initial))
	current, err := ts.Token()
	if err != nil {
		return nil, outcome.Credential(fmt.Errorf("refresh token: %w", err))
	}
	if current.AccessToken != initial.AccessToken {
		if err := p.persist(stored, current); err != nil {
			return nil, outcome.Credential(fmt.Errorf("persist refreshed token: %w", err))
		}
	}
	return ts, nil
}

// persist writes the refreshed token back, keeping any client identity the
// file already carried.
func (p CredentialsProvider) persist(stored storedToken, tok *oauth2.Token) error {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = stored.RefreshToken
	}
	out := storedToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: refresh,
		Expiry:       tok.Expiry,
		ClientID:     stored.ClientID,
		ClientSecret: stored.ClientSecret,
		TokenURI:     stored.TokenURI,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(p.TokenFile, data, 0o600)
}
