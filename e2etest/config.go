package e2etest

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/status-im/market-hydrator/config"
)

// createTestConfig writes a configuration pointing at the mock server and
// returns its path. The SQLite store lives in dir so a second app can reuse it.
func createTestConfig(dir, mockURL, port, cacheVersion string) (string, error) {
	configContent := fmt.Sprintf(`
currency: usd
supported_currencies: [USD, CAD]
global_cache_version: "%s"

store:
  driver: sqlite
  path: "%s"

preload:
  max_concurrent: 2
  fetch_timeout: 5s
  reap_interval: 1s

coingecko:
  public_url: "%s"   # URL for CoinGecko public API
  pro_url: "%s"      # URL for CoinGecko Pro API
  max_retries: 1
  rate_limits:
    nokey:
      rate_limit_per_minute: 60000
      burst: 100

server:
  port: "%s"
  retry_after: 2s

log:
  level: warn
`, cacheVersion, filepath.Join(dir, "hydrator.db"), mockURL, mockURL, port)

	configPath := filepath.Join(dir, "config-"+cacheVersion+"-"+port+".yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return "", err
	}
	return configPath, nil
}

// loadTestConfig creates and loads test configuration
func loadTestConfig(dir, mockURL, port, cacheVersion string) (*config.Config, error) {
	configPath, err := createTestConfig(dir, mockURL, port, cacheVersion)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(configPath)
}

// freePort asks the OS for a port nothing listens on
func freePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return strconv.Itoa(listener.Addr().(*net.TCPAddr).Port), nil
}
