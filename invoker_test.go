package geminiwebapi

import (
	"errors"
	"testing"
)

func runningClient() *GeminiClient {
	c := &GeminiClient{
		creds: NewCredentialStore(nil),
		tasks: newTaskRegistry(),
	}
	c.Running.Store(true)
	return c
}

func TestInvokeSuccess(t *testing.T) {
	c := runningClient()
	calls := 0
	out, err := invoke(c, invocation{name: "op", retries: 2}, func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestInvokeUnclassifiedErrorPropagatesImmediately(t *testing.T) {
	c := runningClient()
	calls := 0
	boom := errors.New("connection reset")
	_, err := invoke(c, invocation{name: "op", retries: 2}, func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, unclassified errors must not retry", calls)
	}
}

func TestInvokeClassifiedErrorUsesBudget(t *testing.T) {
	c := runningClient()
	calls := 0
	_, err := invoke(c, invocation{name: "op", retries: 1}, func() (int, error) {
		calls++
		return 0, &APIError{Msg: "bad frame"}
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want budget+1", calls)
	}
}

func TestInvokeRecoversWithinBudget(t *testing.T) {
	c := runningClient()
	calls := 0
	out, err := invoke(c, invocation{name: "op", retries: 2}, func() (string, error) {
		calls++
		if calls < 2 {
			return "", &GeminiError{Msg: "empty"}
		}
		return "recovered", nil
	})
	if err != nil || out != "recovered" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d", calls)
	}
}

func TestInvokeImageGenerationErrorCappedAtOneRetry(t *testing.T) {
	c := runningClient()
	calls := 0
	_, err := invoke(c, invocation{name: "op", retries: 3}, func() (int, error) {
		calls++
		return 0, &ImageGenerationError{APIError{Msg: "images missing"}}
	})
	var imgErr *ImageGenerationError
	if !errors.As(err, &imgErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, image generation retries at most once", calls)
	}
}

func TestClassifiedError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{}, true},
		{&ImageGenerationError{}, true},
		{&GeminiError{}, true},
		{&TimeoutError{}, true},
		{&UsageLimitExceeded{}, true},
		{&ModelInvalid{}, true},
		{&TemporarilyBlocked{}, true},
		{&AuthError{}, false},
		{&ValueError{}, false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := classifiedError(tc.err); got != tc.want {
			t.Errorf("classifiedError(%T) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
