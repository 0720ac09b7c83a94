package geminiwebapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GeminiClient is the http client interface for gemini.google.com. A single
// instance is shared across chat sessions; the underlying connection is
// long-lived and reused. Two background tasks may run alongside foreground
// calls: the cookie refresher and the idle-close timer, at most one of each.
type GeminiClient struct {
	creds *CredentialStore
	Proxy string

	// Running flips from the idle-close goroutine while foreground calls
	// read it, so it must be atomic.
	Running atomic.Bool

	mu         sync.Mutex // guards httpClient; Init swaps it while tasks run
	httpClient *http.Client
	Timeout    time.Duration

	autoClose       bool
	closeDelay      time.Duration
	autoRefresh     bool
	refreshInterval time.Duration

	insecure  bool
	tasks     *taskRegistry
	onRefresh func(Credential)

	gems      *GemJar
	convStore *ConvStore
	accountID string
}

// NewGeminiClient creates a client from session cookie values. The client is
// not ready until Init succeeds; calls made earlier initialize it lazily.
func NewGeminiClient(secure1psid, secure1psidts, proxy string, opts ...func(*GeminiClient)) *GeminiClient {
	seed := map[string]string{}
	if secure1psid != "" {
		seed[cookiePSID] = secure1psid
		if secure1psidts != "" {
			seed[cookiePSIDTS] = secure1psidts
		}
	}
	c := &GeminiClient{
		creds:           NewCredentialStore(seed),
		Proxy:           proxy,
		Timeout:         300 * time.Second,
		closeDelay:      300 * time.Second,
		autoRefresh:     true,
		refreshInterval: 540 * time.Second,
		tasks:           newTaskRegistry(),
	}
	if secure1psid != "" {
		suffix := Sha256Hex(secure1psid)
		if len(suffix) > 16 {
			suffix = suffix[:16]
		}
		c.accountID = "gemini-web-" + suffix
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

// WithInsecureTLS skips TLS verification on all outbound requests.
func WithInsecureTLS(insecure bool) func(*GeminiClient) {
	return func(c *GeminiClient) { c.insecure = insecure }
}

// WithAutoClose tears down the transport connection after the given period of
// inactivity. Useful for always-on services.
func WithAutoClose(delay time.Duration) func(*GeminiClient) {
	return func(c *GeminiClient) {
		c.autoClose = true
		c.closeDelay = delay
	}
}

// WithAutoRefresh controls the background cookie refresher.
func WithAutoRefresh(enabled bool, interval time.Duration) func(*GeminiClient) {
	return func(c *GeminiClient) {
		c.autoRefresh = enabled
		if interval > 0 {
			c.refreshInterval = interval
		}
	}
}

// WithRefreshHook registers a callback invoked with the new credential
// snapshot after each successful background refresh, e.g. to persist rotated
// cookies.
func WithRefreshHook(fn func(Credential)) func(*GeminiClient) {
	return func(c *GeminiClient) { c.onRefresh = fn }
}

// WithConversationStore persists chat lineage across restarts.
func WithConversationStore(store *ConvStore) func(*GeminiClient) {
	return func(c *GeminiClient) { c.convStore = store }
}

// Init performs the credential handshake and readies the transport. Posting
// without the derived access token fails with 400, so nothing works before
// this succeeds. Starting Init replaces any prior refresher for the same
// credential identity.
func (c *GeminiClient) Init(timeout time.Duration, verbose bool) error {
	seed := c.creds.Snapshot()
	cred, err := acquireCredential(seed.Cookies, c.Proxy, verbose, c.insecure)
	if err != nil {
		c.Close(0)
		return err
	}
	c.creds.Replace(cred)

	if timeout <= 0 {
		timeout = c.Timeout
	}
	c.mu.Lock()
	c.httpClient = newHTTPClient(httpOptions{
		ProxyURL:        c.Proxy,
		Insecure:        c.insecure,
		FollowRedirects: true,
		Timeout:         timeout,
	})
	c.mu.Unlock()
	c.Timeout = timeout
	c.Running.Store(true)

	if c.autoClose {
		c.resetCloseTask()
	}
	if c.autoRefresh {
		c.startAutoRefresh(c.refreshInterval)
	}
	if verbose {
		log.Info("Gemini client initialized successfully.")
	}
	return nil
}

// Close marks the client not running and releases idle connections, after an
// optional delay. The next call re-initializes. The refresher keeps running;
// it is replaced on re-init and canceled by Shutdown.
func (c *GeminiClient) Close(delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	c.Running.Store(false)
	c.tasks.cancel(idleCloseTask)
	if hc := c.transport(); hc != nil {
		hc.CloseIdleConnections()
	}
}

// transport returns the current http client under the lock; the idle-close
// task may call Close while Init is replacing it.
func (c *GeminiClient) transport() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

// Shutdown cancels all background tasks and closes the client.
func (c *GeminiClient) Shutdown() {
	c.tasks.cancelAll()
	c.Close(0)
}

// Credential returns a snapshot of the current credential pair.
func (c *GeminiClient) Credential() Credential {
	return c.creds.Snapshot()
}

// GenerateContent sends a prompt (with optional file attachments) and decodes
// the response into a ModelOutput. The chat session, when given, contributes
// its lineage and persona but is not mutated here; sessions adopt outputs
// explicitly via ApplyOutput.
func (c *GeminiClient) GenerateContent(prompt string, files []string, model Model, gem *Gem, chat *ChatSession) (ModelOutput, error) {
	if prompt == "" {
		return ModelOutput{}, &ValueError{Msg: "Prompt cannot be empty."}
	}
	if c.autoClose {
		c.resetCloseTask()
	}
	return invoke(c, invocation{name: "generate_content", retries: defaultGenerateRetries}, func() (ModelOutput, error) {
		return c.generateOnce(prompt, files, model, gem, chat)
	})
}

func (c *GeminiClient) generateOnce(prompt string, files []string, model Model, gem *Gem, chat *ChatSession) (ModelOutput, error) {
	var empty ModelOutput

	// One credential snapshot per request; token and cookies stay a matched
	// pair even if the refresher rotates mid-flight.
	cred := c.creds.Snapshot()

	attachments := make([]Attachment, 0, len(files))
	for _, fp := range files {
		ref, err := uploadFile(fp, c.Proxy, c.insecure)
		if err != nil {
			return empty, err
		}
		name, err := parseFileName(fp)
		if err != nil {
			return empty, err
		}
		attachments = append(attachments, Attachment{Ref: ref, Name: name})
	}

	var lineage []string
	gemID := ""
	if chat != nil {
		lineage = chat.lineageForWire()
	}
	if gem != nil {
		gemID = gem.ID
	}

	form, err := buildGenerateForm(cred.AccessToken, prompt, attachments, lineage, gemID)
	if err != nil {
		return empty, err
	}

	reqID := uuid.NewString()[:8]
	logger := log.WithField("request", reqID)
	logger.Debugf("generate: model=%s lineage=%v files=%d", model.Name, lineage, len(files))

	req, err := http.NewRequest(http.MethodPost, EndpointGenerate, strings.NewReader(form.Encode()))
	if err != nil {
		return empty, err
	}
	applyHeaders(req, HeadersGemini)
	applyHeaders(req, model.ModelHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	applyCookies(req, cred.Cookies)

	resp, err := c.transport().Do(req)
	if err != nil {
		if isTimeout(err) {
			return empty, &TimeoutError{GeminiError{Msg: "Generate content request timed out, please try again. If the problem persists, consider setting a higher timeout value."}}
		}
		return empty, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.Close(0)
		return empty, &TemporarilyBlocked{GeminiError{Msg: "Too many requests. IP temporarily blocked."}}
	}
	if resp.StatusCode != http.StatusOK {
		c.Close(0)
		return empty, &APIError{Msg: fmt.Sprintf("Failed to generate contents. Request failed with status code %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, err
	}
	output, err := parseGenerateResponse(string(b), model.Name)
	if err != nil {
		if closeOnParseError(err) {
			logger.Debugf("invalid response: %s", truncateForLog(string(b)))
			c.Close(0)
		}
		return empty, err
	}

	// Image fetches need the same credential the response was served under.
	for i := range output.Candidates {
		for j := range output.Candidates[i].WebImages {
			output.Candidates[i].WebImages[j].Proxy = c.Proxy
		}
		for j := range output.Candidates[i].GeneratedImages {
			output.Candidates[i].GeneratedImages[j].Proxy = c.Proxy
			output.Candidates[i].GeneratedImages[j].Cookies = cred.Cookies
		}
	}
	return output, nil
}

// closeOnParseError reports whether a decode failure should tear down the
// connection and force re-initialization on the next call. Empty-but-valid
// responses and slow image delivery leave the connection alone.
func closeOnParseError(err error) bool {
	var imgErr *ImageGenerationError
	if errors.As(err, &imgErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var usage *UsageLimitExceeded
	var invalid *ModelInvalid
	var blocked *TemporarilyBlocked
	return errors.As(err, &usage) || errors.As(err, &invalid) || errors.As(err, &blocked)
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func truncateForLog(s string) string {
	const max = 2048
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// StartChat returns a new chat session attached to this client. The lineage
// may seed the session from a previous conversation.
func (c *GeminiClient) StartChat(model Model, gem *Gem, lineage []string) *ChatSession {
	cs := &ChatSession{client: c, model: model, gem: gem}
	if len(lineage) > 0 {
		_ = cs.SetLineage(lineage)
	}
	return cs
}

// ResumeChat restores a session from the conversation store for the given
// model, or starts a fresh one when nothing was persisted.
func (c *GeminiClient) ResumeChat(model Model, gem *Gem) *ChatSession {
	if c.convStore != nil {
		if lineage, ok, err := c.convStore.LoadLineage(c.accountID, model.Name); err == nil && ok {
			return c.StartChat(model, gem, lineage)
		}
	}
	return c.StartChat(model, gem, nil)
}
