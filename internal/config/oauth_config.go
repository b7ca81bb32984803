package config

import "time"

// OAuth holds the lifetimes of the short-lived flow records.
type OAuth struct {
	PendingTTL         time.Duration // state between /authorize and the downstream callback
	CodeTTL            time.Duration // local authorization code
	SessionMaxLifetime time.Duration // upper bound on a session artifact
	DynamicClientTTL   time.Duration // zero keeps dynamic registrations forever
	WorkerPoolSize     int
}

// Downstream describes the identity provider the bridge delegates to.
type Downstream struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	Issuer       string
	JWKSURL      string
	APIURL       string
}
