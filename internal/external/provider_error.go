package external

import "fmt"

// WhatsApp Graph API error codes indicating the guest has no open 24h
// conversation window. Free-form session messages are rejected with one of
// these; the caller falls back to a templated message.
const (
	waErrReengagement  = 131047
	waErrOutsideWindow = 131026
)

// ProviderError carries a vendor-level error through the anti-corruption
// layer without losing the vendor's own code. Callers branch on the typed
// helpers instead of string-matching vendor messages.
type ProviderError struct {
	Provider   string
	Code       int
	Message    string
	HTTPStatus int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: [%d] %s", e.Provider, e.Code, e.Message)
}

// OutsideSessionWindow reports whether a WhatsApp send failed because the
// guest has no open conversation window. Only this condition triggers the
// templated-message fallback; other errors propagate.
func (e *ProviderError) OutsideSessionWindow() bool {
	return e.Provider == "whatsapp" &&
		(e.Code == waErrReengagement || e.Code == waErrOutsideWindow)
}
