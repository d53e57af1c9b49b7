package errors

import (
	"github.com/stagecraft-live/stagecraft/internal/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// HandleError converts a domain error into an HTTP status plus a user-facing
// message formatted from the i18n catalog for the given locale.
func HandleError(err error, locale string) (int, string) {
	if locale == "" {
		locale = DefaultLocale
	}
	code := GetCode(err)
	catalog := i18n.GetCatalog(locale)
	return code.HTTPStatus(), catalog.Format(string(code), GetMetadata(err))
}
