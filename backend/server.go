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
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

const defaultAdminUser = "Administrator"

// Options represent server options.
type Options struct {
	Addr        string
	Cert        *tls.Certificate
	DataDir     string
	UseMockAuth bool
	Debug       bool
	Storage     *storage.Storage
	MasterKey   crypto.MasterKey
	Registry    *Registry
	Listener    net.Listener

	// Auth Options
	AuthCookieName string
	AuthJWKSURL    string
	AdminUser      string
	AdminPassword  string
	SessionSecret  []byte // Loaded from storage when empty
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	app        *app
}

// Shutdown gracefully shuts down the server and disconnects change feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string
	s.app.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// StartServer starts the web server and registers the handlers.
func StartServer(opts Options) (*Server, error) {
	a, err := newApp(opts)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: a.Handler(),
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	go func() {
		var err error
		switch {
		case opts.Listener != nil && httpServer.TLSConfig != nil:
			log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.ServeTLS(opts.Listener, "", "")
		case opts.Listener != nil:
			log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.Serve(opts.Listener)
		case httpServer.TLSConfig != nil:
			log.Printf("Starting HTTPS server on %s...", opts.Addr)
			err = httpServer.ListenAndServeTLS("", "")
		default:
			log.Printf("Starting HTTP server on %s...", opts.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{httpServer: httpServer, app: a}, nil
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (http.Handler, error) {
	a, err := newApp(opts)
	if err != nil {
		return nil, err
	}
	return a.Handler(), nil
}

// app holds the state shared by all handlers.
type app struct {
	opts          Options
	registry      *Registry
	hub           *ChangeHub
	metrics       *RequestMetrics
	pages         map[string]*template.Template
	sessionSecret []byte
	debugf        func(string, ...any)
}

func newApp(opts Options) (*app, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.AdminUser == "" {
		opts.AdminUser = defaultAdminUser
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, opts.MasterKey)
	}

	debugf := func(string, ...any) {}
	if opts.Debug {
		debugf = func(f string, a ...any) {
			log.Printf("[DEBUG BACKEND] "+f, a...)
		}
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = NewRegistry(NewDocumentStore(opts.DataDir, opts.Storage)); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
	}

	secret := opts.SessionSecret
	if len(secret) == 0 && !opts.UseMockAuth {
		var err error
		if secret, err = loadSessionSecret(opts.Storage); err != nil {
			return nil, fmt.Errorf("session secret: %w", err)
		}
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &app{
		opts:          opts,
		registry:      registry,
		hub:           NewChangeHub(debugf),
		metrics:       NewRequestMetrics(),
		pages:         pages,
		sessionSecret: secret,
		debugf:        debugf,
	}, nil
}

// Close stops the change hub.
func (a *app) Close() {
	a.hub.Close()
}

// Handler returns the fully wrapped HTTP handler.
func (a *app) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /logout", a.handleLogout)

	mux.HandleFunc("GET /{$}", requireUser(a.handleHome))
	mux.HandleFunc("GET /nxpath/{path...}", requireUser(a.handlePath))
	mux.HandleFunc("GET /doc/{id}", requireUser(a.handleDocument))
	mux.HandleFunc("POST /doc/{id}/create", requireUser(a.handleCreate))
	mux.HandleFunc("POST /doc/{id}/delete", requireUser(a.handleDelete))
	mux.HandleFunc("GET /search", requireUser(a.handleSearch))
	mux.HandleFunc("GET /spreadsheet", requireUser(a.handleSpreadsheet))
	mux.Handle("GET /static/", contentTypeMiddleware(http.FileServerFS(webRoot)))

	mux.HandleFunc("GET /api/columns", requireAPIUser(a.handleColumns))
	mux.HandleFunc("POST /api/query", requireAPIUser(a.handleQuery))
	mux.HandleFunc("PUT /api/documents", requireAPIUser(a.handleSaveDocuments))
	mux.HandleFunc("GET /api/changes", requireAPIUser(a.hub.ServeWS))
	mux.HandleFunc("GET /api/metrics", requireAPIUser(a.handleMetrics))

	handler := http.Handler(mux)
	if a.opts.UseMockAuth {
		handler = mockAuthMiddleware(handler)
	} else {
		handler = sessionAuthMiddleware(a.opts, a.sessionSecret, handler)
	}
	handler = loggingMiddleware(a.debugf, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	handler = metricsMiddleware(a.metrics, handler)
	return handler
}

// cacheControlMiddleware lets browsers cache static assets only.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/static/") {
			w.Header().Set("Cache-Control", "public, max-age=300, no-transform")
		} else {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
// The spreadsheet is embedded in an iframe of the same origin, so framing
// is restricted to 'self' instead of denied.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'self'")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// contentTypeMiddleware ensures that files are served with the correct MIME type.
func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Ext(r.URL.Path) {
		case ".js", ".mjs":
			w.Header().Set("Content-Type", "application/javascript")
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".png":
			w.Header().Set("Content-Type", "image/png")
		case ".svg":
			w.Header().Set("Content-Type", "image/svg+xml")
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(debugf func(string, ...any), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/static/") {
			debugf("Received request: %s %s", r.Method, r.URL.Path)
		} else {
			log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
