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

package e2e

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
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ttbt-io/docsheet/backend"
)

var (
	withChromeDP = flag.String("with-chromedp", "", "The url of the remote debugging port")
	baseURLFlag  = flag.String("base-url", "", "Run against this deployment instead of starting a server")
	testUser     = flag.String("user", "Administrator", "The user to log in as")
	testPassword = flag.String("password", "Administrator", "The password of --user")
)

// scenarioTimeout bounds each scenario, from login to logout.
const scenarioTimeout = 2 * time.Minute

func TestMain(m *testing.M) {
	flag.Parse()
	exitCode := m.Run()
	os.Exit(exitCode)
}

// startTestServer returns the base URL of the application under test,
// starting a fresh server unless --base-url is set.
func startTestServer(t *testing.T) string {
	if *baseURLFlag != "" {
		return strings.TrimSuffix(*baseURLFlag, "/")
	}

	cert, err := generateSelfSignedCert()
	if err != nil {
		t.Fatalf("Failed to generate self-signed cert: %v", err)
	}

	// Listen on a random free port on all interfaces (IPv4 forced)
	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	_, port, _ := net.SplitHostPort(l.Addr().String())

	server, err := backend.StartServer(backend.Options{
		Listener:      l,
		Cert:          cert,
		DataDir:       t.TempDir(),
		Debug:         true,
		AdminUser:     *testUser,
		AdminPassword: *testPassword,
	})
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(sdCtx)
	})

	localURL := fmt.Sprintf("https://localhost:%s/login", port)
	if err := waitForServer(localURL, 5*time.Second); err != nil {
		t.Fatalf("Server failed to start: %v", err)
	}
	return fmt.Sprintf("https://devtest.local:%s", port)
}

func generateSelfSignedCert() (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Hour * 24),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", "devtest", "devtest.local", "devtest.public"},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &cert, nil
}

func waitForServer(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	client := http.Client{Transport: tr}

	for start := time.Now(); time.Since(start) < timeout; {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			log.Printf("Server at %s is ready!", url)
			return nil
		}
		log.Printf("waitForServer(%q): %v", url, err)
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return fmt.Errorf("timeout waiting for server at %s", url)
}

// browser is one tab shared by the scenarios of a test. JavaScript errors
// reported by the page are collected and checked after every scenario.
type browser struct {
	ctx context.Context

	mu       sync.Mutex
	jsErrors []string
}

func newBrowser(t *testing.T) *browser {
	ctx, cancel := chromedp.NewRemoteAllocator(context.Background(), *withChromeDP)
	t.Cleanup(cancel)
	ctx, cancel = chromedp.NewContext(ctx,
		chromedp.WithErrorf(log.Printf),
		chromedp.WithLogf(log.Printf),
	)
	t.Cleanup(cancel)

	b := &browser{ctx: ctx}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if ev.Type == runtime.APITypeError {
				args := make([]string, len(ev.Args))
				for i, arg := range ev.Args {
					args[i] = string(arg.Value)
				}
				b.addError("JS CONSOLE ERROR: " + strings.Join(args, " "))
			}
		case *runtime.EventExceptionThrown:
			b.addError("JS EXCEPTION: " + ev.ExceptionDetails.Text)
		}
	})
	// Allocate the tab now so that it outlives the per-scenario contexts.
	if err := chromedp.Run(ctx); err != nil {
		t.Fatalf("Failed to start browser: %v", err)
	}
	return b
}

func (b *browser) addError(msg string) {
	log.Print(msg)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jsErrors = append(b.jsErrors, msg)
}

func (b *browser) takeErrors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	errs := b.jsErrors
	b.jsErrors = nil
	return errs
}

// runScenario runs fn as a subtest between a login and a logout. Each
// scenario starts logged out, so a failed one does not leak state into the
// next.
func runScenario(t *testing.T, b *browser, baseURL, name string, fn func(t *testing.T, ctx context.Context)) {
	t.Run(name, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(b.ctx, scenarioTimeout)
		defer cancel()

		runStep(t, ctx, "Login", chromedp.ActionFunc(func(ctx context.Context) error {
			return Login(ctx, baseURL, *testUser, *testPassword)
		}))
		fn(t, ctx)
		runStep(t, ctx, "Logout", chromedp.ActionFunc(Logout))

		if errs := b.takeErrors(); len(errs) > 0 {
			t.Errorf("Page reported errors:\n%s", strings.Join(errs, "\n"))
		}
	})
}

func screenshotPath(t *testing.T, name string) string {
	dir := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return filepath.Join(os.TempDir(), "docsheet-e2e", dir, name)
}

func runStep(t *testing.T, ctx context.Context, description string, actions ...chromedp.Action) {
	t.Helper()
	t.Logf("STEP: %s", description)
	runAction := func(i int, action chromedp.Action) {
		t.Helper()
		done := make(chan bool)
		defer close(done)
		go func() {
			d, ok := ctx.Deadline()
			if !ok {
				return
			}
			left := time.Until(d) - 5*time.Second
			select {
			case <-done:
				return
			case <-time.After(left):
				CaptureScreenshot(ctx, screenshotPath(t, "debug-5-sec-left.png"))
			case <-time.After(30 * time.Second):
				log.Printf("STEP %s [Action#%d]: single action took more than 30 sec", description, i)
				CaptureScreenshot(ctx, screenshotPath(t, "debug-single-action-timeout.png"))
			}
		}()
		if err := chromedp.Run(ctx, action); err != nil {
			CaptureScreenshot(ctx, screenshotPath(t, "debug-failed-action.png"))
			t.Fatalf("STEP FAILED: %s [Action#%d]: %v", description, i, err)
		}
	}
	for i, action := range actions {
		runAction(i, action)
	}
}
