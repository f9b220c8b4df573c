// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID.
// The associated value is always a string.
var userIDKey contextKey

const (
	defaultAuthCookieName = "docsheet_session"
	mockAuthCookieName    = "mock_auth_user"
	sessionIssuer         = "docsheet"
	sessionTTL            = 12 * time.Hour
	sessionSecretFile     = "session_secret"
)

// getUserID returns the UserID from the request context, if present.
func getUserID(r *http.Request) string {
	if val := r.Context().Value(userIDKey); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func withUserID(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIDKey, userId)
}

// normalizeUser ensures consistent casing and whitespace for User IDs.
func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

// maskUser obscures a user ID for safe logging.
// e.g. "administrator" -> "a***", "user@example.com" -> "u***@example.com"
func maskUser(user string) string {
	if user == "" {
		return "<empty>"
	}
	if at := strings.IndexByte(user, '@'); at > 0 {
		return user[:1] + "***" + user[at:]
	}
	return user[:1] + "***"
}

// loadSessionSecret returns the HMAC key used to sign session tokens,
// creating and persisting a new one on first use.
func loadSessionSecret(s *storage.Storage) ([]byte, error) {
	var secret []byte
	err := s.ReadDataFile(sessionSecretFile, &secret)
	if err == nil && len(secret) >= 32 {
		return secret, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := s.SaveDataFile(sessionSecretFile, secret); err != nil {
		return nil, fmt.Errorf("SaveDataFile: %w", err)
	}
	return secret, nil
}

// issueSessionToken signs an HS256 session token for userId.
func issueSessionToken(secret []byte, userId string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   userId,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (a *app) cookieName() string {
	if a.opts.AuthCookieName != "" {
		return a.opts.AuthCookieName
	}
	return defaultAuthCookieName
}

// checkCredentials validates a login attempt. With mock auth every
// non-empty user name is accepted.
func (a *app) checkCredentials(user, password string) bool {
	if user == "" {
		return false
	}
	if a.opts.UseMockAuth {
		return true
	}
	u := subtle.ConstantTimeCompare([]byte(normalizeUser(a.opts.AdminUser)), []byte(user))
	p := subtle.ConstantTimeCompare([]byte(a.opts.AdminPassword), []byte(password))
	return a.opts.AdminPassword != "" && u&p == 1
}

// safeRedirect only allows local absolute paths as post-login targets.
func safeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (a *app) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "login.html", "Log in", loginPage{Next: safeRedirect(r.URL.Query().Get("next"))})
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	user := normalizeUser(r.PostForm.Get("username"))
	next := safeRedirect(r.PostForm.Get("next"))

	if !a.checkCredentials(user, r.PostForm.Get("password")) {
		log.Printf("[AUTH] Login failed for user=%s", maskUser(user))
		a.render(w, r, http.StatusUnauthorized, "login.html", "Log in", loginPage{Next: next, Username: user, Error: "Invalid username or password"})
		return
	}

	if a.opts.UseMockAuth {
		http.SetCookie(w, &http.Cookie{
			Name:     mockAuthCookieName,
			Value:    user,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		token, err := issueSessionToken(a.sessionSecret, user, time.Now())
		if err != nil {
			log.Printf("issueSessionToken: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName(),
			Value:    token,
			Path:     "/",
			MaxAge:   int(sessionTTL / time.Second),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	log.Printf("[AUTH] User %s logged in", maskUser(user))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{a.cookieName(), mockAuthCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			Expires: time.Unix(0, 0),
			MaxAge:  -1,
		})
	}
	if userId := getUserID(r); userId != "" {
		log.Printf("[AUTH] User %s logged out", maskUser(userId))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// requireUser redirects anonymous page requests to the login form.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if getUserID(r) == "" {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// requireAPIUser rejects anonymous API requests.
func requireAPIUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if getUserID(r) == "" {
			http.Error(w, "Unauthenticated", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
