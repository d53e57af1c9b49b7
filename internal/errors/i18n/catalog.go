// Package i18n holds the user-facing error message catalogs.
package i18n

import "strings"

// Code is an error code key into a catalog.
type Code = string

// Catalog maps error codes to user-facing messages for one locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

// Locale returns the catalog's locale tag.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message for a code, substituting {{.Key}} placeholders
// from metadata. Unknown codes get a generic message.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	message, ok := c.messages[code]
	if !ok {
		return "An unexpected error occurred"
	}
	for key, value := range metadata {
		message = strings.ReplaceAll(message, "{{."+key+"}}", value)
	}
	return message
}

// GetCatalog returns the catalog for a locale, falling back to en-US.
func GetCatalog(locale string) *Catalog {
	switch locale {
	case "en-US", "":
		return enUSCatalog
	default:
		return enUSCatalog
	}
}
