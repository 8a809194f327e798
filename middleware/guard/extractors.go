package guard

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// ErrTokenMissingOrMalformed is returned when no extractor produced a token
var ErrTokenMissingOrMalformed = goerrors.New("missing or malformed JWT", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode("TOKEN_MISSING")

// Extractor pulls a raw token from the request
type Extractor func(c router.Context) (string, error)

// GetExtractors parses a lookup string such as
// "header:Authorization,query:token,cookie:jwt,param:token"
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// ExtractToken returns the first token any extractor finds
func ExtractToken(c router.Context, extractors []Extractor) (string, error) {
	for _, extractor := range extractors {
		raw, err := extractor(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", ErrTokenMissingOrMalformed
}

func tokenFromHeader(header, authScheme string) Extractor {
	return func(c router.Context) (string, error) {
		a := c.Header(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func tokenFromQuery(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromParam(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

// tokenFromCookie reads the Cookie header, router.Context has no cookie
// accessor
func tokenFromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		header := c.Header("Cookie")
		if header == "" {
			return "", ErrTokenMissingOrMalformed
		}

		req := http.Request{Header: http.Header{"Cookie": {header}}}
		cookie, err := req.Cookie(name)
		if err != nil || cookie.Value == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return cookie.Value, nil
	}
}
