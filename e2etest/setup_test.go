package e2etest

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/core"
)

// TestEnv represents a test environment
type TestEnv struct {
	App           *core.App
	MockServer    *MockServer
	Context       context.Context
	CancelFunc    context.CancelFunc
	Dir           string
	ServerBaseURL string
}

// SetupTest sets up the test environment against a fresh store
func SetupTest(t *testing.T) *TestEnv {
	mockServer := NewMockServer()
	env := startApp(t, mockServer, t.TempDir(), "v1")
	if env == nil {
		mockServer.Close()
		t.FailNow()
	}
	return env
}

// startApp builds, starts and hydrates the whole service stack. The store lives
// in dir, so calling it twice with the same dir restarts on the persisted cache.
func startApp(t *testing.T, mockServer *MockServer, dir, cacheVersion string) *TestEnv {
	ctx, cancel := context.WithCancel(context.Background())

	port, err := freePort()
	if err != nil {
		cancel()
		t.Errorf("Failed to find a free port: %v", err)
		return nil
	}

	cfg, err := loadTestConfig(dir, mockServer.GetURL(), port, cacheVersion)
	if err != nil {
		cancel()
		t.Errorf("Failed to load test config: %v", err)
		return nil
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	app, err := core.Setup(cfg, logger, true)
	if err != nil {
		cancel()
		t.Errorf("Failed to setup services: %v", err)
		return nil
	}

	if err := app.StartAll(ctx); err != nil {
		cancel()
		t.Errorf("Failed to start services: %v", err)
		return nil
	}

	env := &TestEnv{
		App:           app,
		MockServer:    mockServer,
		Context:       ctx,
		CancelFunc:    cancel,
		Dir:           dir,
		ServerBaseURL: fmt.Sprintf("http://127.0.0.1:%s", port),
	}

	if err := waitForServer(env.ServerBaseURL + "/health"); err != nil {
		env.stopApp()
		t.Errorf("Server not responding: %v", err)
		return nil
	}

	if err := app.Hydrate(ctx); err != nil {
		env.stopApp()
		t.Errorf("Failed to hydrate: %v", err)
		return nil
	}
	return env
}

// waitForServer polls url until it answers 200 or a deadline passes
func waitForServer(url string) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stopApp stops the services but leaves the mock server running
func (env *TestEnv) stopApp() {
	if env.App != nil {
		env.App.StopAll()
	}
	if env.CancelFunc != nil {
		env.CancelFunc()
	}
}

// TearDown releases test environment resources
func (env *TestEnv) TearDown() {
	env.stopApp()
	if env.MockServer != nil {
		env.MockServer.Close()
	}
}
