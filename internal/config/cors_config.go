package config

import "strings"

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

const wildcardOrigin = "*"

// ParseAllowedOrigins reads a comma or space separated origin list.
func ParseAllowedOrigins(raw string) AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		origins[strings.TrimRight(o, "/")] = nullValue{}
	}
	return origins
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	if _, ok := a[wildcardOrigin]; ok {
		return true
	}
	_, ok := a[strings.TrimRight(origin, "/")]
	return ok
}

// AllowsAny reports whether the wildcard origin is configured
func (a AllowedOrigins) AllowsAny() bool {
	_, ok := a[wildcardOrigin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

type Cors struct {
	AllowedOrigins AllowedOrigins
}

func (Cors) AllowedMethods() string {
	return "GET, POST, DELETE"
}

func (Cors) AllowedHeaders() string {
	return "Content-Type, Authorization, Mcp-Session-Id"
}

func (Cors) ExposedHeaders() string {
	return "Mcp-Session-Id"
}
