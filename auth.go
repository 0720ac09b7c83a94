package geminiwebapi

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

type httpOptions struct {
	ProxyURL        string
	Insecure        bool
	FollowRedirects bool
	Timeout         time.Duration
}

func newHTTPClient(opts httpOptions) *http.Client {
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if pu, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(pu)
		}
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	// The upstream frontend negotiates h2; keep parity with the browser.
	_ = http2.ConfigureTransport(transport)
	jar, _ := cookiejar.New(nil)
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Transport: transport, Timeout: timeout, Jar: jar}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func applyHeaders(req *http.Request, headers http.Header) {
	for k, v := range headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
}

func applyCookies(req *http.Request, cookies map[string]string) {
	for k, v := range cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
}

var reAccessToken = regexp.MustCompile(`"SNlM0e":"([^"]+)"`)

func sendInitRequest(cookies map[string]string, proxy string, insecure bool) (*http.Response, map[string]string, error) {
	client := newHTTPClient(httpOptions{ProxyURL: proxy, Insecure: insecure, FollowRedirects: true})
	req, err := http.NewRequest(http.MethodGet, EndpointInit, nil)
	if err != nil {
		return nil, nil, err
	}
	applyHeaders(req, HeadersGemini)
	applyCookies(req, cookies)
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, nil, &AuthError{Msg: resp.Status}
	}
	outCookies := map[string]string{}
	for _, c := range resp.Cookies() {
		outCookies[c.Name] = c.Value
	}
	for k, v := range cookies {
		outCookies[k] = v
	}
	return resp, outCookies, nil
}

// acquireCredential performs the initial handshake: it loads the app page
// with the seed cookies and scrapes the access token out of the embedded
// page state. Without that token every POST fails with 400.
func acquireCredential(seedCookies map[string]string, proxy string, verbose bool, insecure bool) (Credential, error) {
	var empty Credential

	// Warm up google.com first; some accounts only hand out a usable cookie
	// set (NID, etc.) after that hop.
	extraCookies := map[string]string{}
	{
		client := newHTTPClient(httpOptions{ProxyURL: proxy, Insecure: insecure, FollowRedirects: true})
		req, err := http.NewRequest(http.MethodGet, EndpointGoogle, nil)
		if err == nil {
			resp, errDo := client.Do(req)
			if errDo != nil {
				if verbose {
					log.Debugf("priming google cookies failed: %v", errDo)
				}
			} else if resp != nil {
				if u, errParse := url.Parse(EndpointGoogle); errParse == nil {
					for _, c := range client.Jar.Cookies(u) {
						extraCookies[c.Name] = c.Value
					}
				}
				_ = resp.Body.Close()
			}
		}
	}

	trySets := make([]map[string]string, 0, 2)
	if v1, ok1 := seedCookies[cookiePSID]; ok1 {
		merged := map[string]string{cookiePSID: v1}
		if v2, ok2 := seedCookies[cookiePSIDTS]; ok2 {
			merged[cookiePSIDTS] = v2
		} else if verbose {
			log.Debugf("Seed cookies have no %s; trying without it", cookiePSIDTS)
		}
		if nid, ok := seedCookies["NID"]; ok {
			merged["NID"] = nid
		}
		trySets = append(trySets, merged)
	}
	if len(extraCookies) > 0 {
		trySets = append(trySets, extraCookies)
	}

	for _, cookies := range trySets {
		resp, mergedCookies, err := sendInitRequest(cookies, proxy, insecure)
		if err != nil {
			if verbose {
				log.Warnf("Failed init request: %v", err)
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return empty, err
		}
		matches := reAccessToken.FindStringSubmatch(string(body))
		if len(matches) >= 2 {
			if verbose {
				log.Info("Gemini access token acquired.")
			}
			return Credential{
				Cookies:     mergedCookies,
				AccessToken: matches[1],
				IssuedAt:    time.Now(),
			}, nil
		}
	}
	return empty, &AuthError{Msg: "Failed to retrieve token."}
}

// rotate1PSIDTS re-derives the short-lived session cookie. Returns "" when
// the server accepted the request but sent no replacement.
func rotate1PSIDTS(cookies map[string]string, proxy string, insecure bool) (string, error) {
	if _, ok := cookies[cookiePSID]; !ok {
		return "", &AuthError{Msg: cookiePSID + " missing"}
	}

	client := newHTTPClient(httpOptions{ProxyURL: proxy, Insecure: insecure, FollowRedirects: true})

	req, err := http.NewRequest(http.MethodPost, EndpointRotateCookies, strings.NewReader(`[000,"-0000000000000000000"]`))
	if err != nil {
		return "", err
	}
	applyHeaders(req, HeadersRotateCookies)
	applyCookies(req, cookies)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", &AuthError{Msg: "unauthorized"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New(resp.Status)
	}

	for _, c := range resp.Cookies() {
		if c.Name == cookiePSIDTS {
			return c.Value, nil
		}
	}
	// The Set-Cookie may have landed on a redirect hop; check the jar.
	if u, errParse := url.Parse(EndpointRotateCookies); errParse == nil && client.Jar != nil {
		for _, c := range client.Jar.Cookies(u) {
			if c.Name == cookiePSIDTS && c.Value != "" {
				return c.Value, nil
			}
		}
	}
	return "", nil
}

// MaskToken28 masks a sensitive token for safe logging, keeping a short
// prefix, a sliver of the middle, and the suffix visible.
func MaskToken28(s string) string {
	n := len(s)
	if n == 0 {
		return ""
	}
	if n < 20 {
		return strings.Repeat("*", n)
	}
	midStart := n/2 - 2
	if midStart < 8 {
		midStart = 8
	}
	if midStart+4 > n-8 {
		midStart = n - 8 - 4
		if midStart < 8 {
			midStart = 8
		}
	}
	return s[:8] + strings.Repeat("*", 4) + s[midStart:midStart+4] + strings.Repeat("*", 4) + s[n-8:]
}
