// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package i18n holds the user-facing messages the pipeline itself produces:
// guard rejections and error pages. Messages are looked up by Key in the
// user's locale through a golang.org/x/text catalog, falling back to
// English.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a pipeline message.
type Key string

const (
	// SessionTokenInvalid is shown when a request carries the wrong token.
	SessionTokenInvalid Key = "session.token.invalid"

	// SessionExpired is shown when a token arrives for a session that has
	// none, usually because it timed out.
	SessionExpired Key = "session.expired"

	// StepStale is shown when a content or AJAX request uses an old step.
	StepStale Key = "step.stale"

	// StepWarped tells the user their last action came from an outdated
	// page and was dropped.
	StepWarped Key = "step.warped"

	// BadRequest is the generic message for a malformed request.
	BadRequest Key = "request.bad"

	// InternalError is the generic message for an unexpected failure.
	InternalError Key = "error.internal"

	// ErrorPageTitle titles the error page.
	ErrorPageTitle Key = "error.page.title"

	// ErrorPageDetail labels the developer detail block.
	ErrorPageDetail Key = "error.page.detail"
)

// Supported lists the locales with a full catalog, default first.
var Supported = []language.Tag{language.English, language.German}

var (
	catalogue = buildCatalog()
	matcher   = language.NewMatcher(Supported)
)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, entries map[Key]string) {
		for k, v := range entries {
			// SetString only fails for malformed messages; these are literals.
			_ = b.SetString(tag, string(k), v)
		}
	}
	set(language.English, map[Key]string{
		SessionTokenInvalid: "Your request could not be verified. Please reload the page.",
		SessionExpired:      "Your session is no longer valid or has timed out.",
		StepStale:           "The page you are using is out of date. Please reload it.",
		StepWarped:          "Your last action was made on an outdated page and was not applied.",
		BadRequest:          "The request could not be processed.",
		InternalError:       "Sorry, an internal error occurred.",
		ErrorPageTitle:      "Error",
		ErrorPageDetail:     "Details",
	})
	set(language.German, map[Key]string{
		SessionTokenInvalid: "Ihre Anfrage konnte nicht überprüft werden. Bitte laden Sie die Seite neu.",
		SessionExpired:      "Ihre Sitzung ist nicht mehr gültig oder abgelaufen.",
		StepStale:           "Die verwendete Seite ist veraltet. Bitte laden Sie sie neu.",
		StepWarped:          "Ihre letzte Aktion stammte von einer veralteten Seite und wurde nicht ausgeführt.",
		BadRequest:          "Die Anfrage konnte nicht verarbeitet werden.",
		InternalError:       "Es ist leider ein interner Fehler aufgetreten.",
		ErrorPageTitle:      "Fehler",
		ErrorPageDetail:     "Details",
	})
	return b
}

// Match returns the supported locale closest to the client's preferences,
// given as an Accept-Language header value.
func Match(acceptLanguage string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(prefs...)
	return Supported[idx]
}

// Message returns the text for key in tag's language.
func Message(tag language.Tag, key Key, args ...any) string {
	p := message.NewPrinter(tag, message.Catalog(catalogue))
	return p.Sprintf(string(key), args...)
}
