package config

const EnvPrefix = "BUDGETDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	TransportLocal  = "local"
	TransportPubSub = "pubsub"
)

const (
	EnvAppEnv            = "BUDGETDESK_APP_ENV"
	EnvPort              = "BUDGETDESK_APP_PORT"
	EnvDBDSN             = "BUDGETDESK_DB_DSN"
	EnvDBHost            = "BUDGETDESK_DB_HOST"
	EnvDBUser            = "BUDGETDESK_DB_USER"
	EnvDBName            = "BUDGETDESK_DB_NAME"
	EnvRedisURL          = "BUDGETDESK_REDIS_URL"
	EnvJWTSecret         = "BUDGETDESK_JWT_SECRET"
	EnvJWTIssuer         = "BUDGETDESK_JWT_ISSUER"
	EnvEventingTransport = "BUDGETDESK_EVENTING_TRANSPORT"
	EnvPubSubBudgetTopic = "BUDGETDESK_PUBSUB_BUDGET_TOPIC"
	EnvPubSubBudgetSub   = "BUDGETDESK_PUBSUB_BUDGET_SUBSCRIPTION"
	EnvSendgridAPIKey    = "BUDGETDESK_SENDGRID_API_KEY"
	EnvSendgridFrom      = "BUDGETDESK_SENDGRID_FROM_EMAIL"
	EnvCORSOrigins       = "BUDGETDESK_CORS_ALLOWED_ORIGINS"
	EnvUseSQLite         = "BUDGETDESK_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
