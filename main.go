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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/docsheet/backend"
)

var (
	addr           = flag.String("addr", ":8080", "The TCP address to listen to")
	useMockAuth    = flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode      = flag.Bool("debug", false, "Enable debug mode")
	dataDir        = flag.String("data-dir", "data", "Directory for document data")
	tlsCert        = flag.String("tls-cert", "", "Path to main HTTP TLS certificate")
	tlsKey         = flag.String("tls-key", "", "Path to main HTTP TLS key")
	authCookieName = flag.String("auth-cookie-name", "docsheet_session", "Name of the cookie containing the session JWT")
	authJWKSURL    = flag.String("auth-jwks-url", "", "JWKS endpoint of an external identity provider")
	adminUser      = flag.String("admin-user", "Administrator", "Name of the administrator account")
	adminPassword  = flag.String("admin-password", "", "Password of the administrator account. Password login is disabled when empty.")
)

// main starts the web server and registers the handlers.
func main() {
	flag.Parse()
	log.Printf("docsheet %s", backend.CurrentAppVersion)

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load main TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	if *adminPassword == "" && !*useMockAuth {
		log.Println("Warning: --admin-password is not set. Password login is disabled.")
	}

	// Initialize Encryption Key and Storage
	masterKey, err := backend.LoadMasterKey(*dataDir, os.Getenv("DOCSHEET_MASTER_KEY"), true)
	if err != nil {
		log.Fatalf("Critical Security Error: %v", err)
	}
	if masterKey == nil {
		log.Println("Warning: No DOCSHEET_MASTER_KEY provided. Data will be stored UNENCRYPTED.")
	}

	store := storage.New(*dataDir, masterKey)
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:           *addr,
		Cert:           mainTLSCert,
		DataDir:        *dataDir,
		UseMockAuth:    *useMockAuth,
		Debug:          *debugMode,
		Storage:        store,
		MasterKey:      masterKey,
		AuthCookieName: *authCookieName,
		AuthJWKSURL:    *authJWKSURL,
		AdminUser:      *adminUser,
		AdminPassword:  *adminPassword,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
