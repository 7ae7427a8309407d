package socialauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle   = "google"
	ProviderLinkedIn = "linkedin"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrExchange        = errors.New("authorization code exchange failed")
	ErrProfile         = errors.New("profile request failed")
	ErrEmailMissing    = errors.New("profile has no email")
	ErrEmailUnverified = errors.New("provider has not verified the email")
)

// Profile is the identity a provider vouched for.
type Profile struct {
	Provider       string
	ProviderUserID string
	Email          string
	FullName       string
	PictureURL     string
}

type Verifier interface {
	Verify(ctx context.Context, provider, code string) (*Profile, error)
}

// Provider pairs an OAuth client with its OpenID userinfo endpoint.
type Provider struct {
	Name        string
	OAuth       *oauth2.Config
	UserInfoURL string
}

func Google(clientID, clientSecret, redirectURL string) Provider {
	return Provider{
		Name: ProviderGoogle,
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
	}
}

func LinkedIn(clientID, clientSecret, redirectURL string) Provider {
	return Provider{
		Name: ProviderLinkedIn,
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.LinkedIn,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://api.linkedin.com/v2/userinfo",
	}
}

// OAuthVerifier redeems authorization codes and reads the userinfo profile.
type OAuthVerifier struct {
	providers  map[string]Provider
	httpClient *http.Client
}

// NewOAuthVerifier registers the providers that have a client ID. A nil
// httpClient uses http.DefaultClient.
func NewOAuthVerifier(httpClient *http.Client, providers ...Provider) *OAuthVerifier {
	v := &OAuthVerifier{
		providers:  make(map[string]Provider, len(providers)),
		httpClient: httpClient,
	}
	for _, p := range providers {
		if p.OAuth == nil || strings.TrimSpace(p.OAuth.ClientID) == "" {
			continue
		}
		v.providers[p.Name] = p
	}
	return v
}

func (v *OAuthVerifier) Enabled(provider string) bool {
	_, ok := v.providers[strings.ToLower(provider)]
	return ok
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func (v *OAuthVerifier) Verify(ctx context.Context, provider, code string) (*Profile, error) {
	p, ok := v.providers[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if v.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	}

	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	resp, err := p.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProfile, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProfile, err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return nil, ErrEmailMissing
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return nil, ErrEmailUnverified
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrProfile)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = strings.TrimSpace(info.GivenName + " " + info.FamilyName)
	}
	return &Profile{
		Provider:       p.Name,
		ProviderUserID: info.Sub,
		Email:          strings.ToLower(strings.TrimSpace(info.Email)),
		FullName:       name,
		PictureURL:     info.Picture,
	}, nil
}
