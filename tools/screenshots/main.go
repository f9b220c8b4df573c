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
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/chromedp/chromedp"
	"github.com/ttbt-io/docsheet/backend"
	"github.com/ttbt-io/docsheet/tools/e2ehelpers"
)

var (
	chromeURL = flag.String("chrome-url", "", "The url of the remote debugging port")
	outputDir = flag.String("output-dir", "/screenshots", "Directory to save screenshots")
)

const demoUser = "jdoe@example.com"

func main() {
	flag.Parse()

	if *chromeURL == "" {
		log.Fatal("--chrome-url must be set")
	}

	baseURL, workspaceID := startServer()
	log.Printf("Server started at %s", baseURL)

	ctx, cancel := chromedp.NewRemoteAllocator(context.Background(), *chromeURL)
	defer cancel()

	ctx, cancel = chromedp.NewContext(ctx, chromedp.WithLogf(log.Printf))
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	// Ensure output dir exists
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	if err := chromedp.Run(ctx, chromedp.EmulateViewport(1280, 800)); err != nil {
		log.Fatalf("Failed to set viewport: %v", err)
	}

	log.Println("Starting screenshot generation...")

	if err := e2ehelpers.Login(ctx, baseURL, demoUser, ""); err != nil {
		debugFailure(ctx, "login")
		log.Fatalf("Login failed: %v", err)
	}
	if err := generateScreenshots(ctx, baseURL, workspaceID); err != nil {
		log.Fatalf("Failed to generate screenshots: %v", err)
	}

	log.Println("Screenshots generated successfully.")
}

func debugFailure(ctx context.Context, name string) {
	log.Printf("DEBUG: capturing failure info for %s", name)
	var htmlContent string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &htmlContent)); err != nil {
		log.Printf("DEBUG: Failed to capture HTML: %v", err)
	} else {
		log.Printf("DEBUG: HTML Dump for %s:\n%s", name, htmlContent)
	}
	if err := e2ehelpers.CaptureScreenshot(ctx, filepath.Join(*outputDir, fmt.Sprintf("debug-%s.png", name))); err != nil {
		log.Printf("DEBUG: %v", err)
	}
}

// runAction executes fn with a timeout and debug capture on failure.
func runAction(ctx context.Context, name string, fn func(context.Context) error, timeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("Capturing %s", name)
	if err := fn(stepCtx); err != nil {
		log.Printf("Action '%s' failed: %v", name, err)
		debugFailure(ctx, name+"-failed")
		return err
	}
	return nil
}

func generateScreenshots(ctx context.Context, baseURL, workspaceID string) error {
	shot := func(name string) error {
		return e2ehelpers.CaptureScreenshot(ctx, filepath.Join(*outputDir, name))
	}
	cv := e2ehelpers.DocumentContentView()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"workspace-listing", func(ctx context.Context) error {
			if err := e2ehelpers.GoToDocument(ctx, baseURL, workspaceID); err != nil {
				return err
			}
			if err := cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutListing); err != nil {
				return err
			}
			return shot("workspace-listing.png")
		}},
		{"workspace-thumbnails", func(ctx context.Context) error {
			if err := cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutThumbnail); err != nil {
				return err
			}
			if err := shot("workspace-thumbnails.png"); err != nil {
				return err
			}
			return cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutListing)
		}},
		{"spreadsheet-popup", func(ctx context.Context) error {
			page, err := e2ehelpers.OpenSpreadsheet(ctx, cv)
			if err != nil {
				return err
			}
			if err := shot("spreadsheet-popup.png"); err != nil {
				return err
			}
			if err := page.SetData(ctx, 1, 3, backend.StateApproved); err != nil {
				return err
			}
			if err := shot("spreadsheet-edit.png"); err != nil {
				return err
			}
			if err := page.Save(ctx); err != nil {
				return err
			}
			if err := page.Close(ctx); err != nil {
				return err
			}
			return e2ehelpers.WaitForRequests(ctx, e2ehelpers.TopFrame.Runner())
		}},
		{"search", func(ctx context.Context) error {
			if err := e2ehelpers.GoToSearchPage(ctx, baseURL, "report"); err != nil {
				return err
			}
			return shot("search.png")
		}},
		{"spreadsheet-standalone", func(ctx context.Context) error {
			if err := e2ehelpers.NavToURL(ctx, baseURL+"/spreadsheet"); err != nil {
				return err
			}
			page, err := e2ehelpers.NewSpreadsheetPage(ctx, e2ehelpers.TopFrame)
			if err != nil {
				return err
			}
			if err := page.WaitReady(ctx); err != nil {
				return err
			}
			if err := page.ExecuteQuery(ctx, "SELECT * FROM File WHERE ecm:fulltext = 'report' ORDER BY dc:modified DESC"); err != nil {
				return err
			}
			return shot("spreadsheet-standalone.png")
		}},
	}
	for _, s := range steps {
		if err := runAction(ctx, s.name, s.fn, 30*time.Second); err != nil {
			return err
		}
	}
	return nil
}

// seedDemo creates the documents shown in the screenshots and returns the
// workspace ID.
func seedDemo(reg *backend.Registry) (string, error) {
	ws, err := reg.CreateChild(reg.WorkspaceRootID(), backend.TypeWorkspace, "Quarterly Reports", "Finance team reports", demoUser)
	if err != nil {
		return "", err
	}
	files := []struct{ title, description string }{
		{"Q1 report", "Revenue and costs for January to March"},
		{"Q2 report", "Revenue and costs for April to June"},
		{"Budget 2026", "Yearly budget draft"},
	}
	for _, f := range files {
		if _, err := reg.CreateChild(ws.ID, backend.TypeFile, f.title, f.description, demoUser); err != nil {
			return "", err
		}
	}
	archive, err := reg.CreateChild(ws.ID, backend.TypeFolder, "Archive", "", demoUser)
	if err != nil {
		return "", err
	}
	if _, err := reg.CreateChild(archive.ID, backend.TypeFile, "Q4 2025 report", "Last year's closing report", demoUser); err != nil {
		return "", err
	}
	return ws.ID, nil
}

func startServer() (string, string) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		log.Fatalf("Failed to generate cert: %v", err)
	}
	dataDir, err := os.MkdirTemp("", "docsheet-screenshots")
	if err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	s := storage.New(dataDir, nil)
	reg, err := backend.NewRegistry(backend.NewDocumentStore(dataDir, s))
	if err != nil {
		log.Fatalf("Failed to open registry: %v", err)
	}
	workspaceID, err := seedDemo(reg)
	if err != nil {
		log.Fatalf("Failed to seed demo documents: %v", err)
	}

	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	if _, err := backend.StartServer(backend.Options{
		Listener:    l,
		Cert:        cert,
		DataDir:     dataDir,
		UseMockAuth: true,
		Storage:     s,
		Registry:    reg,
	}); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	return fmt.Sprintf("https://devtest.local:%s", port), workspaceID
}

func generateSelfSignedCert() (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Test Org"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour * 24),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", "devtest", "devtest.local"},
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	crtPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	cert, err := tls.X509KeyPair(crtPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
