package geminiwebapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Gem is a named persona/system-prompt preset, either predefined by the
// service or created by the user.
type Gem struct {
	ID          string
	Name        string
	Description string
	Prompt      *string
	Predefined  bool
}

func (g Gem) String() string {
	return fmt.Sprintf("Gem(id='%s', name='%s', predefined=%v)", g.ID, g.Name, g.Predefined)
}

// GemJar is an immutable snapshot of available gems keyed by id, replaced
// wholesale on each fetch.
type GemJar map[string]Gem

func (j GemJar) Get(id string) (Gem, bool) {
	g, ok := j[id]
	return g, ok
}

// Filter returns gems matching the given constraints. Pass nil to ignore the
// predefined flag and "" to ignore the name.
func (j GemJar) Filter(predefined *bool, name string) []Gem {
	out := make([]Gem, 0, len(j))
	for _, g := range j {
		if predefined != nil && g.Predefined != *predefined {
			continue
		}
		if name != "" && g.Name != name {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Gems returns the cached gem snapshot. Only available after FetchGems.
func (c *GeminiClient) Gems() (GemJar, error) {
	if c.gems == nil {
		return nil, &ValueError{Msg: "Gems not fetched yet. Call FetchGems to fetch gems from gemini.google.com."}
	}
	return *c.gems, nil
}

// FetchGems lists available gems, both system predefined and user created. A
// network request is made on every call; the result is cached and accessible
// via Gems afterwards.
func (c *GeminiClient) FetchGems() (GemJar, error) {
	return invoke(c, invocation{name: "fetch_gems", retries: defaultGemRetries}, c.fetchGemsOnce)
}

func (c *GeminiClient) fetchGemsOnce() (GemJar, error) {
	cred := c.creds.Snapshot()
	form, err := buildGemListForm(cred.AccessToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, EndpointBatchExec, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	applyHeaders(req, HeadersGemini)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	applyCookies(req, cred.Cookies)

	resp, err := c.transport().Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{GeminiError{Msg: "Fetch gems request timed out, please try again."}}
		}
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Msg: fmt.Sprintf("Failed to fetch gems. Request failed with status code %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	jar, err := parseGemList(string(b))
	if err != nil {
		c.Close(0)
		return nil, err
	}
	c.gems = &jar
	return jar, nil
}

// parseGemList decodes the batch-RPC reply. Each part carries its request tag
// as the trailing element; the payload's gem list sits at a fixed index.
func parseGemList(raw string) (GemJar, error) {
	structural := &APIError{Msg: "Failed to fetch gems. Invalid response data received. Client will try to re-initialize on next request."}

	lines := strings.Split(raw, "\n")
	if len(lines) < 3 {
		return nil, structural
	}
	outer := gjson.Parse(lines[2])
	if !outer.IsArray() {
		return nil, structural
	}

	jar := GemJar{}
	count := 0
	for _, part := range outer.Array() {
		tag := part.Get(pathPartTag).String()
		if tag != "system" && tag != "custom" {
			continue
		}
		main := parsePayload(part)
		if !main.IsArray() {
			continue
		}
		for _, entry := range main.Get(pathGemList).Array() {
			gem := Gem{
				ID:          entry.Get(pathGemID).String(),
				Name:        entry.Get(pathGemName).String(),
				Description: entry.Get(pathGemDescription).String(),
				Predefined:  tag == "system",
			}
			if p := entry.Get(pathGemPrompt); truthy(p) {
				s := entry.Get(pathGemPromptText).String()
				gem.Prompt = &s
			}
			if gem.ID == "" {
				continue
			}
			jar[gem.ID] = gem
			count++
		}
	}
	if count == 0 {
		return nil, structural
	}
	return jar, nil
}
