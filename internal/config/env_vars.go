package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	externalURLVar = "EXTERNAL_URL"
	issuerURLVar   = "ISSUER_URL"
	secretVar      = "SECRET"
	clientsPathVar = "CLIENTS_PATH"
	redisURLVar    = "REDIS_URL"
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelVar    = "LOG_LEVEL"
	capabilityVar  = "CAPABILITY"

	downstreamClientIDVar     = "DOWNSTREAM_CLIENT_ID"
	downstreamClientSecretVar = "DOWNSTREAM_CLIENT_SECRET"
	downstreamAuthURLVar      = "DOWNSTREAM_AUTH_URL"
	downstreamTokenURLVar     = "DOWNSTREAM_TOKEN_URL"
	downstreamScopesVar       = "DOWNSTREAM_SCOPES"
	downstreamIssuerVar       = "DOWNSTREAM_ISSUER"
	downstreamJWKSURLVar      = "DOWNSTREAM_JWKS_URL"
	downstreamAPIURLVar       = "DOWNSTREAM_API_URL"

	pendingTTLVar         = "PENDING_TTL"
	codeTTLVar            = "CODE_TTL"
	sessionMaxLifetimeVar = "SESSION_MAX_LIFETIME"
	dynamicClientTTLVar   = "DYNAMIC_CLIENT_TTL"
	workerPoolSizeVar     = "WORKER_POOL_SIZE"
	allowedOriginsVar     = "ALLOWED_ORIGINS"
)

// MemoryCacheURL selects the in-process cache instead of Redis.
const MemoryCacheURL = "memory://"

const (
	defaultExternalURL = "http://localhost:8000/"
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultPort        = "8000"
	defaultAppName     = "Passthru Auth"
	defaultEnv         = "DEV"
	defaultLogLevel    = "info"
	defaultCapability  = "calendar"

	defaultDownstreamAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultDownstreamTokenURL = "https://oauth2.googleapis.com/token"
	defaultDownstreamScopes   = "https://www.googleapis.com/auth/calendar"
	defaultDownstreamIssuer   = "https://accounts.google.com"
	defaultDownstreamJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
	defaultDownstreamAPIURL   = "https://www.googleapis.com/calendar/v3"

	defaultPendingTTL         = 10 * time.Minute
	defaultCodeTTL            = 5 * time.Minute
	defaultSessionMaxLifetime = time.Hour
	defaultWorkerPoolSize     = 32
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(externalURLVar, defaultExternalURL)
	v.SetDefault(issuerURLVar, "")
	v.SetDefault(secretVar, "")
	v.SetDefault(clientsPathVar, "")
	v.SetDefault(redisURLVar, defaultRedisURL)
	v.SetDefault(portEnvVar, defaultPort)
	v.SetDefault(appNameVar, defaultAppName)
	v.SetDefault(envVar, defaultEnv)
	v.SetDefault(logLevelVar, defaultLogLevel)
	v.SetDefault(capabilityVar, defaultCapability)

	v.SetDefault(downstreamClientIDVar, "")
	v.SetDefault(downstreamClientSecretVar, "")
	v.SetDefault(downstreamAuthURLVar, defaultDownstreamAuthURL)
	v.SetDefault(downstreamTokenURLVar, defaultDownstreamTokenURL)
	v.SetDefault(downstreamScopesVar, defaultDownstreamScopes)
	v.SetDefault(downstreamIssuerVar, defaultDownstreamIssuer)
	v.SetDefault(downstreamJWKSURLVar, defaultDownstreamJWKSURL)
	v.SetDefault(downstreamAPIURLVar, defaultDownstreamAPIURL)

	v.SetDefault(pendingTTLVar, defaultPendingTTL)
	v.SetDefault(codeTTLVar, defaultCodeTTL)
	v.SetDefault(sessionMaxLifetimeVar, defaultSessionMaxLifetime)
	v.SetDefault(dynamicClientTTLVar, time.Duration(0))
	v.SetDefault(workerPoolSizeVar, defaultWorkerPoolSize)
	v.SetDefault(allowedOriginsVar, "*")
}
