package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port             int    `envconfig:"PORT" default:"8080"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	JWTSecret        string `envconfig:"JWT_SECRET" required:"true"`
	RenewalURL       string `envconfig:"RENEWAL_URL" default:""`
	ServiceTokenHash string `envconfig:"SERVICE_TOKEN_HASH" default:""`
	Version          string `envconfig:"VERSION" default:"dev"`

	InactivityWindow      time.Duration `envconfig:"INACTIVITY_WINDOW" default:"60m"`
	RenewalLead           time.Duration `envconfig:"RENEWAL_LEAD" default:"1m"`
	RenewalThreshold      time.Duration `envconfig:"RENEWAL_THRESHOLD" default:"5m"`
	ActivityFlushInterval time.Duration `envconfig:"ACTIVITY_FLUSH_INTERVAL" default:"30s"`
	ActivityBufferCap     int           `envconfig:"ACTIVITY_BUFFER_CAP" default:"200"`
	RoleProbeOrder        []string      `envconfig:"ROLE_PROBE_ORDER" default:"parent,homeEducationGuardian"`
	AccessPolicyPath      string        `envconfig:"ACCESS_POLICY_PATH" default:""`
}

// AccessPolicy is the YAML policy file: identities that may never sign in,
// and the email domains that mark an identity as staff.
type AccessPolicy struct {
	Blocklist    []string `json:"blocklist"`
	StaffDomains []string `json:"staffDomains"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPolicy reads the access-policy file at path. An empty path yields an
// empty policy rather than an error, so deployments without one still start.
func LoadPolicy(path string) (*AccessPolicy, error) {
	if path == "" {
		return &AccessPolicy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading access policy: %w", err)
	}

	var policy AccessPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parsing access policy: %w", err)
	}

	for i, email := range policy.Blocklist {
		policy.Blocklist[i] = strings.ToLower(strings.TrimSpace(email))
	}
	for i, domain := range policy.StaffDomains {
		policy.StaffDomains[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
	}

	return &policy, nil
}
