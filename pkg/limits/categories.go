package limits

import (
	"net/http"
	"strings"
)

// EndpointCategory is a coarse classification of request type. Each
// category carries an independent rate-limit budget per tier.
type EndpointCategory string

const (
	CategoryGraphRead      EndpointCategory = "graph_read"
	CategoryGraphWrite     EndpointCategory = "graph_write"
	CategoryQuery          EndpointCategory = "query"
	CategoryAnalytics      EndpointCategory = "analytics"
	CategoryBackup         EndpointCategory = "backup"
	CategorySync           EndpointCategory = "sync"
	CategoryMCP            EndpointCategory = "mcp"
	CategoryAgent          EndpointCategory = "agent"
	CategoryAuth           EndpointCategory = "auth"
	CategoryUserManagement EndpointCategory = "user_management"
	CategoryPublic         EndpointCategory = "public"
)

// AllCategories lists every category, for configuration validation and
// metrics pre-registration.
var AllCategories = []EndpointCategory{
	CategoryGraphRead,
	CategoryGraphWrite,
	CategoryQuery,
	CategoryAnalytics,
	CategoryBackup,
	CategorySync,
	CategoryMCP,
	CategoryAgent,
	CategoryAuth,
	CategoryUserManagement,
	CategoryPublic,
}

// Categorize maps a request path and method to its endpoint category.
//
// Graph-scoped paths (/api/graphs/...) are split into read and write by
// HTTP method; sub-resource suffixes like /mcp, /agent, /analytics,
// /backups and /sync override the method split because their cost profile
// is independent of the verb.
func Categorize(path, method string) EndpointCategory {
	path = strings.TrimSuffix(path, "/")

	switch {
	case strings.HasPrefix(path, "/api/auth"):
		return CategoryAuth
	case strings.HasPrefix(path, "/api/users"), strings.HasPrefix(path, "/api/organizations"):
		return CategoryUserManagement
	}

	if strings.HasPrefix(path, "/api/graphs") || strings.HasPrefix(path, "/api/shared") {
		switch {
		case strings.Contains(path, "/mcp"):
			return CategoryMCP
		case strings.Contains(path, "/agent"):
			return CategoryAgent
		case strings.Contains(path, "/analytics"):
			return CategoryAnalytics
		case strings.Contains(path, "/backups"):
			return CategoryBackup
		case strings.Contains(path, "/sync"):
			return CategorySync
		case strings.Contains(path, "/query"):
			return CategoryQuery
		}

		switch method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return CategoryGraphRead
		default:
			return CategoryGraphWrite
		}
	}

	if strings.HasPrefix(path, "/api/query") {
		return CategoryQuery
	}

	return CategoryPublic
}

// exemptPrefixes are infrastructure paths never subject to tiered
// limiting: rejecting a health probe under quota pressure would turn a
// busy tenant into a dead instance.
var exemptPrefixes = []string{
	"/healthz",
	"/readyz",
	"/status",
	"/metrics",
	"/favicon.ico",
}

// SubscriptionLimited reports whether a path is subject to tiered rate
// limiting at all. Auth paths are exempt from the tier budget but carry
// their own fixed sub-limiter (see Limiter.CheckAuth).
func SubscriptionLimited(path string) bool {
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return !strings.HasPrefix(path, "/api/auth")
}
