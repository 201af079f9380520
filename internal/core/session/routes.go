package session

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// Route maps a URL path pattern to a content type. The content id is the
// last path segment of a matching URL.
type Route struct {
	Pattern     string                 `yaml:"pattern"`
	ContentType engagement.ContentType `yaml:"content_type"`
}

// DefaultRoutes classifies the platform's standard content URLs.
var DefaultRoutes = []Route{
	{Pattern: "/questions/*", ContentType: engagement.ContentQuestion},
	{Pattern: "/quiz/**/questions/*", ContentType: engagement.ContentQuestion},
	{Pattern: "/flashcards/**", ContentType: engagement.ContentFlashcard},
	{Pattern: "/decks/*/cards/*", ContentType: engagement.ContentFlashcard},
	{Pattern: "/media/*", ContentType: engagement.ContentMedia},
	{Pattern: "/videos/*", ContentType: engagement.ContentMedia},
	{Pattern: "/shorts/*", ContentType: engagement.ContentMedia},
	{Pattern: "/reading/**", ContentType: engagement.ContentReading},
	{Pattern: "/articles/*", ContentType: engagement.ContentReading},
}

// Router classifies navigation URLs. First matching route wins.
type Router struct {
	routes []Route
}

// NewRouter validates routes and returns a Router.
func NewRouter(routes []Route) (*Router, error) {
	for i, r := range routes {
		if !doublestar.ValidatePattern(r.Pattern) {
			return nil, fmt.Errorf("route %d: invalid pattern %q", i, r.Pattern)
		}
		if !r.ContentType.Valid() {
			return nil, fmt.Errorf("route %d: unknown content type %q", i, r.ContentType)
		}
	}
	return &Router{routes: routes}, nil
}

// Classify returns the content type and id for rawURL, or empty strings when
// no route matches.
func (r *Router) Classify(rawURL string) (engagement.ContentType, string) {
	if r == nil || rawURL == "" {
		return "", ""
	}

	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "", ""
	}

	for _, route := range r.routes {
		if ok, _ := doublestar.Match(route.Pattern, p); ok {
			return route.ContentType, path.Base(p)
		}
	}
	return "", ""
}
