package geminiwebapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Image is a single image reference in a model response.
type Image struct {
	URL   string
	Title string
	Alt   string
	Proxy string
}

func (i Image) String() string {
	short := i.URL
	if len(short) > 20 {
		short = short[:8] + "..." + short[len(short)-12:]
	}
	return fmt.Sprintf("Image(title='%s', alt='%s', url='%s')", i.Title, i.Alt, short)
}

var reFileNameWithExt = regexp.MustCompile(`^(.*\.\w+)`)

// Save downloads the image to path. Generated images require the session
// cookies that produced them; web images usually fetch without any.
func (i Image) Save(path, filename string, cookies map[string]string, verbose bool, skipInvalidFilename bool, insecure bool) (string, error) {
	if filename == "" {
		filename = i.URL
		if p := strings.Split(filename, "/"); len(p) > 0 {
			filename = p[len(p)-1]
		}
		if q := strings.Split(filename, "?"); len(q) > 0 {
			filename = q[0]
		}
	}
	if filename != "" {
		if m := reFileNameWithExt.FindStringSubmatch(filename); len(m) >= 2 {
			filename = m[1]
		} else {
			if verbose {
				log.Warnf("Invalid filename: %s", filename)
			}
			if skipInvalidFilename {
				return "", nil
			}
		}
	}

	client := newHTTPClient(httpOptions{ProxyURL: i.Proxy, Insecure: insecure, FollowRedirects: true, Timeout: 120 * time.Second})

	// The cookie header must survive cross-domain redirects, so set it raw on
	// every hop instead of relying on the jar.
	rawCookie := buildCookieHeader(cookies)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if rawCookie != "" {
			req.Header.Set("Cookie", rawCookie)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}

	req, err := http.NewRequest(http.MethodGet, i.URL, nil)
	if err != nil {
		return "", err
	}
	if rawCookie != "" {
		req.Header.Set("Cookie", rawCookie)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error downloading image: %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "image") {
		log.Warnf("Content type of %s is not image, but %s.", filename, ct)
	}

	if path == "" {
		path = "temp"
	}
	if err = os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(path, filename)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, resp.Body)
	_ = f.Close()
	if err != nil {
		return "", err
	}
	if verbose {
		log.Infof("Image saved as %s", dest)
	}
	return filepath.Abs(dest)
}

func buildCookieHeader(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "; ")
}

// WebImage is an image the model pulled from the web; fetchable without
// credentials.
type WebImage struct{ Image }

// GeneratedImage is an image produced by the model. Fetching its bytes
// requires the session cookies of the credential that generated it.
type GeneratedImage struct {
	Image
	Cookies map[string]string
}

// Save downloads the generated image; fullSize requests the 2048px rendition.
func (g GeneratedImage) Save(path, filename string, fullSize bool, verbose bool, skipInvalidFilename bool, insecure bool) (string, error) {
	if len(g.Cookies) == 0 {
		return "", &ValueError{Msg: "GeneratedImage requires cookies."}
	}
	strURL := g.URL
	if fullSize {
		strURL += "=s2048"
	}
	if filename == "" {
		name := time.Now().Format("20060102150405")
		if len(strURL) >= 10 {
			filename = fmt.Sprintf("%s_%s.png", name, strURL[len(strURL)-10:])
		} else {
			filename = name + ".png"
		}
	}
	img := g.Image
	img.URL = strURL
	return img.Save(path, filename, g.Cookies, verbose, skipInvalidFilename, insecure)
}

// FetchGeneratedImageData downloads a generated image and returns its mime
// type and base64-encoded bytes.
func FetchGeneratedImageData(gi GeneratedImage) (string, string, error) {
	path, err := gi.Save(os.TempDir(), "", true, false, true, false)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = os.Remove(path) }()
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mimeType := http.DetectContentType(b)
	if !strings.HasPrefix(mimeType, "image/") {
		if guessed := mime.TypeByExtension(filepath.Ext(path)); strings.HasPrefix(guessed, "image/") {
			mimeType = guessed
		} else {
			mimeType = "image/png"
		}
	}
	return mimeType, base64.StdEncoding.EncodeToString(b), nil
}

// uploadFile pushes a local file to the upload endpoint and returns the
// opaque reference the request codec embeds in the content envelope.
func uploadFile(path string, proxy string, insecure bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(fw, f); err != nil {
		return "", err
	}
	_ = mw.Close()

	client := newHTTPClient(httpOptions{ProxyURL: proxy, Insecure: insecure, FollowRedirects: true, Timeout: 300 * time.Second})

	req, err := http.NewRequest(http.MethodPost, EndpointUpload, &buf)
	if err != nil {
		return "", err
	}
	applyHeaders(req, HeadersUpload)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Msg: resp.Status}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseFileName(path string) (string, error) {
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return "", &ValueError{Msg: path + " is not a valid file."}
	}
	return filepath.Base(path), nil
}
