/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// PolicyBackend selects where device opt-out policies are read from.
type PolicyBackend string

const (
	PolicyDynamoDB PolicyBackend = "dynamodb"
	PolicySQL      PolicyBackend = "sql"
	PolicyFile     PolicyBackend = "file"
)

// ObjectBackend selects where accepted commands are written.
type ObjectBackend string

const (
	ObjectS3         ObjectBackend = "s3"
	ObjectFilesystem ObjectBackend = "fs"
	ObjectNone       ObjectBackend = "none"
)

// SecretBackend selects where the downstream authorization token comes from.
type SecretBackend string

const (
	SecretsManager SecretBackend = "secretsmanager"
	SecretEnv      SecretBackend = "env"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Policy lookup
	PolicyBackend  PolicyBackend
	DynamoDBTable  string
	PolicyFile     string
	PolicyCacheTTL time.Duration

	// SQL database (policy backend "sql" and the dispatch audit log)
	DBBackend DatabaseBackend
	DBDSN     string

	// AWS
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string // For LocalStack and friends

	// Command storage
	ObjectBackend  ObjectBackend
	S3Bucket       string
	S3Endpoint     string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle bool   // Required for MinIO
	ObjectDir      string

	// Authorization token for stored commands
	SecretBackend    SecretBackend
	SecretID         string
	SecretTokenField string
	StaticToken      string

	// Notifications
	SlackWebhookURL   string
	WebhookURL        string
	WebhookSecret     string
	NotifyRatePerSec  int
	NATSURL           string
	NATSSubjectPrefix string

	// Redis policy cache
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"LIMITGATE_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"LIMITGATE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"LIMITGATE_HTTP_PORT", "PORT"}, 8080),

		PolicyBackend:  PolicyBackend(getEnvAny([]string{"LIMITGATE_POLICY_BACKEND"}, string(PolicyDynamoDB))),
		DynamoDBTable:  getEnvAny([]string{"LIMITGATE_DYNAMODB_TABLE"}, "devices"),
		PolicyFile:     getEnvAny([]string{"LIMITGATE_POLICY_FILE"}, ""),
		PolicyCacheTTL: getEnvDurationAny([]string{"LIMITGATE_POLICY_CACHE_TTL"}, 5*time.Minute),

		DBBackend: DatabaseBackend(getEnvAny([]string{"LIMITGATE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"LIMITGATE_DB_DSN"}, ""),

		AWSRegion:          getEnvAny([]string{"LIMITGATE_AWS_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"}, "us-west-2"),
		AWSAccessKeyID:     getEnvAny([]string{"LIMITGATE_AWS_ACCESS_KEY_ID"}, ""),
		AWSSecretAccessKey: getEnvAny([]string{"LIMITGATE_AWS_SECRET_ACCESS_KEY"}, ""),
		AWSEndpoint:        getEnvAny([]string{"LIMITGATE_AWS_ENDPOINT"}, ""),

		ObjectBackend:  ObjectBackend(getEnvAny([]string{"LIMITGATE_OBJECT_BACKEND"}, string(ObjectS3))),
		S3Bucket:       getEnvAny([]string{"LIMITGATE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:     getEnvAny([]string{"LIMITGATE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle: getEnvBoolAny([]string{"LIMITGATE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		ObjectDir:      getEnvAny([]string{"LIMITGATE_OBJECT_DIR"}, "./commands"),

		SecretBackend:    SecretBackend(getEnvAny([]string{"LIMITGATE_SECRET_BACKEND"}, string(SecretsManager))),
		SecretID:         getEnvAny([]string{"LIMITGATE_SECRET_ID"}, ""),
		SecretTokenField: getEnvAny([]string{"LIMITGATE_SECRET_TOKEN_FIELD"}, "fakeToken"),
		StaticToken:      getEnvAny([]string{"LIMITGATE_STATIC_TOKEN"}, ""),

		SlackWebhookURL:   getEnvAny([]string{"LIMITGATE_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"}, ""),
		WebhookURL:        getEnvAny([]string{"LIMITGATE_WEBHOOK_URL"}, ""),
		WebhookSecret:     getEnvAny([]string{"LIMITGATE_WEBHOOK_SECRET"}, ""),
		NotifyRatePerSec:  getEnvIntAny([]string{"LIMITGATE_NOTIFY_RATE_PER_SEC"}, 5),
		NATSURL:           getEnvAny([]string{"LIMITGATE_NATS_URL", "NATS_URL"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"LIMITGATE_NATS_SUBJECT_PREFIX"}, "limitgate"),

		CacheEnabled:  getEnvBoolAny([]string{"LIMITGATE_CACHE_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"LIMITGATE_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"LIMITGATE_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"LIMITGATE_REDIS_DB"}, 0),

		TracingEnabled:    getEnvBoolAny([]string{"LIMITGATE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"LIMITGATE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"LIMITGATE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selections and the settings each one requires.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}

	switch c.PolicyBackend {
	case PolicyDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("LIMITGATE_DYNAMODB_TABLE must be provided for the dynamodb policy backend")
		}
	case PolicySQL:
		if c.DBDSN == "" {
			return fmt.Errorf("LIMITGATE_DB_DSN must be provided for the sql policy backend")
		}
	case PolicyFile:
		if c.PolicyFile == "" {
			return fmt.Errorf("LIMITGATE_POLICY_FILE must be provided for the file policy backend")
		}
	default:
		return fmt.Errorf("unsupported policy backend %q", c.PolicyBackend)
	}

	switch c.ObjectBackend {
	case ObjectS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("LIMITGATE_S3_BUCKET or S3_BUCKET must be provided for the s3 object backend")
		}
	case ObjectFilesystem:
		if c.ObjectDir == "" {
			return fmt.Errorf("LIMITGATE_OBJECT_DIR must be provided for the fs object backend")
		}
	case ObjectNone:
	default:
		return fmt.Errorf("unsupported object backend %q", c.ObjectBackend)
	}

	switch c.SecretBackend {
	case SecretsManager:
		if c.SecretID == "" {
			return fmt.Errorf("LIMITGATE_SECRET_ID must be provided for the secretsmanager secret backend")
		}
	case SecretEnv:
		if strings.EqualFold(c.Environment, "production") && c.StaticToken == "" {
			return fmt.Errorf("LIMITGATE_STATIC_TOKEN must be set in production when using the env secret backend")
		}
	default:
		return fmt.Errorf("unsupported secret backend %q", c.SecretBackend)
	}

	if c.NotifyRatePerSec <= 0 {
		return fmt.Errorf("LIMITGATE_NOTIFY_RATE_PER_SEC must be positive")
	}
	return nil
}

// HTTPAddr returns the listen address for the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// HasDatabase reports whether a SQL database is configured.
func (c *Config) HasDatabase() bool {
	return c != nil && c.DBDSN != ""
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("90s") or plain seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
