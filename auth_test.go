package geminiwebapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaskToken28(t *testing.T) {
	cases := []struct {
		in   string
		want func(string) bool
		desc string
	}{
		{"", func(s string) bool { return s == "" }, "empty stays empty"},
		{"short", func(s string) bool { return s == "*****" }, "short tokens fully masked"},
		{strings.Repeat("a", 10), func(s string) bool { return s == strings.Repeat("*", 10) }, "sub-20 fully masked"},
	}
	for _, tc := range cases {
		if got := MaskToken28(tc.in); !tc.want(got) {
			t.Errorf("%s: MaskToken28(%q) = %q", tc.desc, tc.in, got)
		}
	}

	long := "g.a000abcdefghijklmnopqrstuvwxyz0123456789"
	masked := MaskToken28(long)
	if !strings.HasPrefix(masked, long[:8]) {
		t.Errorf("masked token should keep the prefix: %q", masked)
	}
	if !strings.HasSuffix(masked, long[len(long)-8:]) {
		t.Errorf("masked token should keep the suffix: %q", masked)
	}
	if !strings.Contains(masked, "****") {
		t.Errorf("masked token should hide the middle: %q", masked)
	}
	if masked == long {
		t.Error("token must not survive masking intact")
	}
}

func TestAcquireCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/warm":
			w.WriteHeader(http.StatusOK)
		case "/app":
			http.SetCookie(w, &http.Cookie{Name: "NID", Value: "nid-value"})
			_, _ = w.Write([]byte(`...,"SNlM0e":"the-token",...`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	overrideEndpoints(t, srv.URL)

	cred, err := acquireCredential(map[string]string{cookiePSID: "psid"}, "", false, false)
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "the-token" {
		t.Errorf("token = %q", cred.AccessToken)
	}
	if cred.Cookies[cookiePSID] != "psid" {
		t.Error("seed cookie lost")
	}
	if cred.Cookies["NID"] != "nid-value" {
		t.Error("response cookies should merge into the credential")
	}
	if cred.IssuedAt.IsZero() {
		t.Error("IssuedAt not set")
	}
}

func TestAcquireCredentialNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nothing useful"))
	}))
	defer srv.Close()
	overrideEndpoints(t, srv.URL)

	_, err := acquireCredential(map[string]string{cookiePSID: "psid"}, "", false, false)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("want AuthError, got %v", err)
	}
}

func TestRotate1PSIDTS(t *testing.T) {
	t.Run("new cookie returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			http.SetCookie(w, &http.Cookie{Name: cookiePSIDTS, Value: "rotated-value"})
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		overrideEndpoints(t, srv.URL)

		newTS, err := rotate1PSIDTS(map[string]string{cookiePSID: "psid"}, "", false)
		if err != nil {
			t.Fatal(err)
		}
		if newTS != "rotated-value" {
			t.Errorf("newTS = %q", newTS)
		}
	})

	t.Run("no replacement issued", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		overrideEndpoints(t, srv.URL)

		newTS, err := rotate1PSIDTS(map[string]string{cookiePSID: "psid"}, "", false)
		if err != nil {
			t.Fatal(err)
		}
		if newTS != "" {
			t.Errorf("newTS = %q, want empty", newTS)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		overrideEndpoints(t, srv.URL)

		_, err := rotate1PSIDTS(map[string]string{cookiePSID: "psid"}, "", false)
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("want AuthError, got %v", err)
		}
	})

	t.Run("missing session cookie", func(t *testing.T) {
		_, err := rotate1PSIDTS(map[string]string{}, "", false)
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("want AuthError, got %v", err)
		}
	})
}

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore(map[string]string{cookiePSID: "psid"})

	snap := store.Snapshot()
	snap.Cookies["injected"] = "x"
	if _, ok := store.Snapshot().Cookies["injected"]; ok {
		t.Error("snapshot must be a deep copy")
	}

	store.SetCookie(cookiePSIDTS, "ts-1")
	if got := store.Snapshot().Cookies[cookiePSIDTS]; got != "ts-1" {
		t.Errorf("SetCookie = %q", got)
	}

	store.Replace(Credential{
		Cookies:     map[string]string{cookiePSID: "other"},
		AccessToken: "tok",
	})
	snap = store.Snapshot()
	if snap.AccessToken != "tok" || snap.Cookies[cookiePSID] != "other" {
		t.Errorf("replaced credential = %+v", snap)
	}
	if store.Identity() != "other" {
		t.Errorf("identity = %q", store.Identity())
	}
}
