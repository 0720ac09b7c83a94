package geminiwebapi

// AuthError indicates that credential acquisition or refresh failed.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return "authentication error"
	}
	return e.Msg
}

// APIError is the generic failure kind: non-200 status or a response whose
// structure could not be parsed.
type APIError struct{ Msg string }

func (e *APIError) Error() string {
	if e.Msg == "" {
		return "api error"
	}
	return e.Msg
}

// ImageGenerationError indicates generated images were announced but never
// located within the scanned response window.
type ImageGenerationError struct{ APIError }

// GeminiError indicates a response that parsed successfully but produced no
// usable candidates.
type GeminiError struct{ Msg string }

func (e *GeminiError) Error() string {
	if e.Msg == "" {
		return "gemini error"
	}
	return e.Msg
}

type TimeoutError struct{ GeminiError }

type UsageLimitExceeded struct{ GeminiError }

type ModelInvalid struct{ GeminiError }

type TemporarilyBlocked struct{ GeminiError }

type ValueError struct{ Msg string }

func (e *ValueError) Error() string {
	if e.Msg == "" {
		return "value error"
	}
	return e.Msg
}
