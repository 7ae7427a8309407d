package socialauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newIdentityServer(t *testing.T, profile map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server, name string) Provider {
	return Provider{
		Name: name,
		OAuth: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		},
		UserInfoURL: srv.URL + "/userinfo",
	}
}

func TestVerifyReturnsProfile(t *testing.T) {
	srv := newIdentityServer(t, map[string]any{
		"sub":            "li-123",
		"email":          " Jane@Example.com ",
		"email_verified": true,
		"given_name":     "Jane",
		"family_name":    "Doe",
		"picture":        "https://cdn.example.com/jane.png",
	})
	v := NewOAuthVerifier(srv.Client(), testProvider(srv, ProviderLinkedIn))

	profile, err := v.Verify(context.Background(), "LinkedIn", "good-code")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		Provider:       ProviderLinkedIn,
		ProviderUserID: "li-123",
		Email:          "jane@example.com",
		FullName:       "Jane Doe",
		PictureURL:     "https://cdn.example.com/jane.png",
	}, profile)
}

func TestVerifyFailures(t *testing.T) {
	tests := []struct {
		name     string
		profile  map[string]any
		provider string
		code     string
		wantErr  error
	}{
		{"unknown provider", map[string]any{"sub": "1", "email": "a@example.com"}, "github", "good-code", ErrUnknownProvider},
		{"rejected code", map[string]any{"sub": "1", "email": "a@example.com"}, ProviderGoogle, "bad-code", ErrExchange},
		{"no email", map[string]any{"sub": "1"}, ProviderGoogle, "good-code", ErrEmailMissing},
		{"unverified email", map[string]any{"sub": "1", "email": "a@example.com", "email_verified": false}, ProviderGoogle, "good-code", ErrEmailUnverified},
		{"no subject", map[string]any{"email": "a@example.com"}, ProviderGoogle, "good-code", ErrProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIdentityServer(t, tt.profile)
			v := NewOAuthVerifier(srv.Client(), testProvider(srv, ProviderGoogle))

			_, err := v.Verify(context.Background(), tt.provider, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProvidersWithoutClientIDAreDisabled(t *testing.T) {
	v := NewOAuthVerifier(nil, Google("", "", "postmessage"), LinkedIn("li-client", "secret", "https://app.example.com/cb"))

	assert.False(t, v.Enabled(ProviderGoogle))
	assert.True(t, v.Enabled(ProviderLinkedIn))
}
