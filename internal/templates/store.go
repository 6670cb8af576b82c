// Package templates resolves and renders guest-facing message templates.
//
// Resolution is three-tiered: a location-level override wins over an
// organization-level override, which wins over the built-in defaults. Hosts
// edit overrides through the dashboard; the built-ins guarantee the pipeline
// can always produce a message.
package templates

import (
	"context"
	"fmt"
	"strings"

	"guestflow/internal/types"
)

// Template is a resolved guest message template.
type Template struct {
	Body                 string
	WhatsAppTemplateName string
	EmailSubject         string
}

// OverrideSource reads host-edited template overrides. Implemented by the
// db package; either ID may be zero to query only the other scope.
type OverrideSource interface {
	// GetOverride returns the override body for the given scope, or ok=false
	// when no override exists. Location-scoped bodies may be stored
	// encrypted; they are returned as stored.
	GetOverride(ctx context.Context, orgID, locationID int64, msgType types.MessageType, lang types.Language) (body string, ok bool, err error)
}

// Store resolves templates with the three-tier fallback.
type Store struct {
	source OverrideSource
	cipher *Cipher
	logger types.Logger
}

// NewStore creates a template store. The cipher may be nil when location
// override encryption is not configured.
func NewStore(source OverrideSource, cipher *Cipher, logger types.Logger) *Store {
	return &Store{source: source, cipher: cipher, logger: logger}
}

// Resolve returns the template for a (MessageType, Language) pair, applying
// the location → organization → built-in fallback chain. Override lookup
// errors are logged and treated as a miss; the built-in tier cannot fail.
func (s *Store) Resolve(ctx context.Context, orgID, locationID int64, msgType types.MessageType, lang types.Language) (Template, error) {
	base, ok := builtinDefaults[defaultKey{msgType, lang}]
	if !ok {
		return Template{}, types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("no template for %s/%s", msgType, lang), nil)
	}

	if locationID != 0 {
		if body, ok := s.lookupOverride(ctx, orgID, locationID, msgType, lang); ok {
			base.Body = body
			return base, nil
		}
	}
	if body, ok := s.lookupOverride(ctx, orgID, 0, msgType, lang); ok {
		base.Body = body
		return base, nil
	}
	return base, nil
}

func (s *Store) lookupOverride(ctx context.Context, orgID, locationID int64, msgType types.MessageType, lang types.Language) (string, bool) {
	if s.source == nil {
		return "", false
	}
	body, ok, err := s.source.GetOverride(ctx, orgID, locationID, msgType, lang)
	if err != nil {
		s.logger.Warn("template override lookup failed, using fallback tier",
			"org_id", orgID, "location_id", locationID,
			"message_type", string(msgType), "language", string(lang), "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	if strings.HasPrefix(body, encPrefix) {
		if s.cipher == nil {
			s.logger.Warn("encrypted template override without cipher configured",
				"org_id", orgID, "location_id", locationID)
			return "", false
		}
		plain, err := s.cipher.Decrypt(body)
		if err != nil {
			s.logger.Warn("template override decryption failed, using fallback tier",
				"org_id", orgID, "location_id", locationID, "error", err)
			return "", false
		}
		body = plain
	}
	return body, true
}
