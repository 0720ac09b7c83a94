// Package geminiwebapi is a client library for the gemini.google.com web
// interface. It authenticates with browser session cookies, keeps them fresh
// in the background, and exposes content generation, multi-turn chat, gem
// listing, and image retrieval.
package geminiwebapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration, loaded from a YAML file.
type Config struct {
	// Secure1PSID is the long-lived session cookie value.
	Secure1PSID string `yaml:"secure-1psid"`

	// Secure1PSIDTS is the short-lived session cookie value. Optional; some
	// accounts authenticate without it.
	Secure1PSIDTS string `yaml:"secure-1psidts"`

	// ProxyURL is the URL of an optional proxy server for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// TimeoutSeconds bounds each generation request.
	TimeoutSeconds int `yaml:"timeout-seconds"`

	// AutoClose tears down the transport connection after a period of
	// inactivity. Useful for always-on services.
	AutoClose bool `yaml:"auto-close"`

	// CloseDelaySeconds is the inactivity period before auto-close fires.
	CloseDelaySeconds int `yaml:"close-delay-seconds"`

	// AutoRefresh keeps the short-lived cookie rotated in the background.
	AutoRefresh *bool `yaml:"auto-refresh"`

	// RefreshIntervalSeconds is the delay between cookie rotations.
	RefreshIntervalSeconds int `yaml:"refresh-interval-seconds"`

	// MaxCharsPerRequest splits oversized prompts across multiple turns.
	MaxCharsPerRequest int `yaml:"max-chars-per-request"`

	// DisableContinuationHint drops the notice appended to intermediate
	// chunks of a split prompt.
	DisableContinuationHint bool `yaml:"disable-continuation-hint"`

	// ConversationStore is the path of the bolt file persisting chat lineage
	// across restarts. Empty disables persistence.
	ConversationStore string `yaml:"conversation-store"`

	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool `yaml:"insecure-tls"`

	// Logging configures log level and optional rotating file output.
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig reads a YAML configuration file from the given path and
// unmarshals it into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Secure1PSID == "" {
		return nil, fmt.Errorf("config: secure-1psid is required")
	}
	return &cfg, nil
}

// MaxChars returns the per-request character limit with a conservative
// default.
func (c *Config) MaxChars() int {
	if c != nil && c.MaxCharsPerRequest > 0 {
		return c.MaxCharsPerRequest
	}
	return 1_000_000
}

// NewClient builds a GeminiClient from the configuration. The client still
// needs Init (or a first call) before use.
func (c *Config) NewClient() (*GeminiClient, error) {
	opts := []func(*GeminiClient){}
	if c.InsecureTLS {
		opts = append(opts, WithInsecureTLS(true))
	}
	if c.AutoClose {
		delay := 300 * time.Second
		if c.CloseDelaySeconds > 0 {
			delay = time.Duration(c.CloseDelaySeconds) * time.Second
		}
		opts = append(opts, WithAutoClose(delay))
	}
	if c.AutoRefresh != nil || c.RefreshIntervalSeconds > 0 {
		enabled := true
		if c.AutoRefresh != nil {
			enabled = *c.AutoRefresh
		}
		opts = append(opts, WithAutoRefresh(enabled, time.Duration(c.RefreshIntervalSeconds)*time.Second))
	}
	if c.ConversationStore != "" {
		store, err := OpenConvStore(c.ConversationStore)
		if err != nil {
			return nil, fmt.Errorf("failed to open conversation store: %w", err)
		}
		opts = append(opts, WithConversationStore(store))
	}
	client := NewGeminiClient(c.Secure1PSID, c.Secure1PSIDTS, c.ProxyURL, opts...)
	if c.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	return client, nil
}

// TokenStorage stores cookie values for web authentication, e.g. next to
// other credential files of a service.
type TokenStorage struct {
	Secure1PSID   string `json:"secure_1psid"`
	Secure1PSIDTS string `json:"secure_1psidts"`
	Type          string `json:"type"`
}

// SaveTokenToFile serializes the token storage to a JSON file.
func (ts *TokenStorage) SaveTokenToFile(path string) error {
	ts.Type = "gemini-web"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			log.Errorf("failed to close file: %v", errClose)
		}
	}()
	if err = json.NewEncoder(f).Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// LoadTokenFromFile reads a token storage JSON file.
func LoadTokenFromFile(path string) (*TokenStorage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ts TokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &ts, nil
}

// TokenWatcher monitors a token file for external changes, e.g. cookies
// re-exported from a browser while the process runs.
type TokenWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	lastHash string
	onChange func(*TokenStorage)
}

// NewTokenWatcher creates a watcher for the given token file. onChange runs
// on every content change; rewrites with identical content are skipped by
// hash comparison.
func NewTokenWatcher(path string, onChange func(*TokenStorage)) (*TokenWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &TokenWatcher{path: path, watcher: fsw, onChange: onChange}
	if data, err2 := os.ReadFile(path); err2 == nil {
		w.lastHash = contentHash(data)
	}
	return w, nil
}

// Start begins watching. The parent directory is watched so that atomic
// rename-over writes are observed.
func (w *TokenWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.processEvents()
	log.Debugf("watching token file: %s", w.path)
	return nil
}

func (w *TokenWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *TokenWatcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("token watcher error: %v", err)
		}
	}
}

func (w *TokenWatcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Errorf("failed to read token file %s: %v", filepath.Base(w.path), err)
		return
	}
	if len(data) == 0 {
		// Intermediate state between truncate and write; wait for content.
		return
	}
	newHash := contentHash(data)
	if newHash == w.lastHash {
		log.Debugf("token file content unchanged (hash match), skipping reload")
		return
	}
	var ts TokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		log.Errorf("failed to parse token file %s: %v", filepath.Base(w.path), err)
		return
	}
	w.lastHash = newHash
	log.Infof("token file changed, reloading: %s", w.path)
	if w.onChange != nil {
		w.onChange(&ts)
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
