package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	// keep a stray .env in the package dir from leaking in
	s.T().Chdir(s.T().TempDir())
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := Load()
	s.Require().NoError(err)

	s.Equal(":8080", cfg.Server.Addr)
	s.Equal("timer", cfg.Expiry.Backend)
	s.Equal(100, cfg.Expiry.BatchSize)
	s.Equal(10, cfg.Policy.PassHistoryLimit)
	s.False(cfg.Policy.BlockOnBlacklist)
	s.Empty(cfg.Postgres.URL)
	s.Equal("gatepass.audit", cfg.Kafka.AuditTopic)
	s.Equal("gatepass.security", cfg.NATS.SecuritySubject)
	s.Equal(12*time.Hour, cfg.Auth.TokenTTL)
}

func (s *ConfigSuite) TestEnvOverrides() {
	s.T().Setenv("GATEPASS_ADDR", ":9090")
	s.T().Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,k1:9092")
	s.T().Setenv("EXPIRY_POLL_INTERVAL", "250ms")
	s.T().Setenv("EXPIRY_BATCH_SIZE", "25")
	s.T().Setenv("REDIS_POOL_SIZE", "not-a-number")

	cfg, err := Load()
	s.Require().NoError(err)

	s.Equal(":9090", cfg.Server.Addr)
	s.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	s.Equal(250*time.Millisecond, cfg.Expiry.PollInterval)
	s.Equal(25, cfg.Expiry.BatchSize)
	s.Equal(10, cfg.Redis.PoolSize)
}

func (s *ConfigSuite) TestPolicyFile() {
	path := filepath.Join(s.T().TempDir(), "policy.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("estate:\n  block_on_blacklist: true\n  pass_history_limit: 25\n"), 0o600))
	s.T().Setenv("GATEPASS_POLICY_FILE", path)

	cfg, err := Load()
	s.Require().NoError(err)

	s.True(cfg.Policy.BlockOnBlacklist)
	s.Equal(25, cfg.Policy.PassHistoryLimit)
	s.Equal(8, cfg.Policy.AdminFanout, "unset keys keep defaults")
	s.Equal(3, cfg.Policy.NotifyFailureLimit)
}

func (s *ConfigSuite) TestValidation() {
	s.Run("redis expiry requires redis url", func() {
		s.T().Setenv("EXPIRY_BACKEND", "redis")
		_, err := Load()
		s.Require().Error(err)
		s.Contains(err.Error(), "REDIS_URL")
	})

	s.Run("production rejects dev signing key", func() {
		s.T().Setenv("EXPIRY_BACKEND", "timer")
		s.T().Setenv("GATEPASS_ENV", "production")
		_, err := Load()
		s.Require().Error(err)
		s.Contains(err.Error(), "JWT_SIGNING_KEY")
	})
}
