// Package i18n serves the widget's localized status strings.
package i18n

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FallbackLanguage is used when a key has no entry for the requested language.
const FallbackLanguage = "en"

// Message keys.
const (
	GenericError     = "generic_error"
	ActivityWarning  = "activity_warning"
	ForceClose       = "force_close"
	EmailSent        = "email_sent"
	EmailFailed      = "email_failed"
	NothingToSend    = "nothing_to_send"
	AudioUnavailable = "audio_unavailable"
	AudioFailed      = "audio_failed"
	MapLinkOffer     = "map_link_offer"
)

//go:embed messages.yaml
var defaultMessages []byte

// Catalog maps message keys to per-language text.
type Catalog struct {
	messages map[string]map[string]string
}

// Default returns the catalog compiled into the binary. It panics if the
// embedded file is malformed.
func Default() *Catalog {
	c, err := Parse(defaultMessages)
	if err != nil {
		panic(fmt.Sprintf("i18n: embedded catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML of the form key -> language -> text.
func Parse(data []byte) (*Catalog, error) {
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for key, langs := range messages {
		if langs[FallbackLanguage] == "" {
			return nil, fmt.Errorf("key %q has no %q text", key, FallbackLanguage)
		}
	}
	return &Catalog{messages: messages}, nil
}

// Text returns the message for key in lang, falling back to English. Unknown
// keys return the key itself so a missing string is visible but harmless.
func (c *Catalog) Text(key, lang string) string {
	langs, ok := c.messages[key]
	if !ok {
		return key
	}
	if s := langs[lang]; s != "" {
		return s
	}
	return langs[FallbackLanguage]
}
