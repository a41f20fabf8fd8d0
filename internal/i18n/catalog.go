// Package i18n holds the user facing texts of the portal in Finnish, English
// and Swedish.
package i18n

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
)

const DefaultLanguage = "fi"

//go:embed messages.yaml
var embedded []byte

// Catalog is immutable once loaded and safe for concurrent use.
type Catalog struct {
	messages map[string]map[string]string
	matcher  language.Matcher
	fallback string
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the catalog built from the embedded messages.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(fmt.Sprintf("embedded message catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse builds a catalog from YAML of the form {lang: {key: text}}.
func Parse(data []byte) (*Catalog, error) {
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	if _, ok := messages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("message catalog has no %q section", DefaultLanguage)
	}

	// the default language goes first so the matcher falls back to it
	tags := []language.Tag{language.Make(DefaultLanguage)}
	for _, lang := range sortedKeys(messages) {
		if lang == DefaultLanguage {
			continue
		}
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q in message catalog: %w", lang, err)
		}
		tags = append(tags, tag)
	}

	return &Catalog{
		messages: messages,
		matcher:  language.NewMatcher(tags),
		fallback: DefaultLanguage,
	}, nil
}

func sortedKeys(m map[string]map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Languages lists the supported language codes.
func (c *Catalog) Languages() []string {
	return sortedKeys(c.messages)
}

// Message returns the text for key in lang, falling back to the default
// language and finally to the key itself.
func (c *Catalog) Message(lang, key string) string {
	if msg, ok := c.messages[lang][key]; ok {
		return msg
	}
	if msg, ok := c.messages[c.fallback][key]; ok {
		return msg
	}
	return key
}

// FromAcceptLanguage picks the best supported language for an
// Accept-Language header value.
func (c *Catalog) FromAcceptLanguage(header string) string {
	if header == "" {
		return c.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return c.fallback
	}

	tag, _, _ := c.matcher.Match(tags...)
	base, _ := tag.Base()
	if _, ok := c.messages[base.String()]; ok {
		return base.String()
	}
	return c.fallback
}

// FromRequest is FromAcceptLanguage for r, with a lang query parameter taking
// precedence.
func (c *Catalog) FromRequest(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		if _, ok := c.messages[lang]; ok {
			return lang
		}
	}
	return c.FromAcceptLanguage(r.Header.Get("Accept-Language"))
}

// ChatError returns the text shown to the user when a chat turn fails.
func (c *Catalog) ChatError(lang string, err error) string {
	var statusErr *chatstream.StatusError

	switch {
	case chatstream.IsRateLimited(err):
		return c.Message(lang, "chat.rate_limited")
	case errors.Is(err, chatstream.ErrAborted):
		return c.Message(lang, "chat.aborted")
	case errors.Is(err, context.DeadlineExceeded):
		return c.Message(lang, "chat.timeout")
	case errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusBadGateway:
		return c.Message(lang, "chat.unavailable")
	default:
		return c.Message(lang, "chat.error")
	}
}
