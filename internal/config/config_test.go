package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noDotEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, ":9090", cfg.GRPC.Listen)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.IssueTokens, "token issuing is opt-in")
	assert.Equal(t, scheduling.PartialWithWarnings, cfg.RecurringPolicy())
	assert.Equal(t, "@every 5m", cfg.Directory.RefreshCron)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadYAMLWithSubjects(t *testing.T) {
	path := writeFile(t, "crmcal.yaml", `
http:
  listen: "127.0.0.1:8181"
  cors_origins: ["https://crm.example"]
auth:
  token_ttl: 2h
  issue_tokens: true
recurrence:
  policy: all_or_nothing
  max_instances: 50
timezone: Europe/Stockholm
directory:
  subjects:
    - id: u1
      organization_id: org-1
      kind: user
      role: sales
      cities: [Stockholm]
      team_ids: [t1]
    - id: t1
      organization_id: org-1
      kind: team
      cities: [Malmö]
`)
	cfg, err := Load(path, noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8181", cfg.HTTP.Listen)
	assert.Equal(t, []string{"https://crm.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.IssueTokens)
	assert.Equal(t, scheduling.AllOrNothing, cfg.RecurringPolicy())
	assert.Equal(t, 50, cfg.Recurrence.MaxInstances)
	assert.Equal(t, "Europe/Stockholm", cfg.Location().String())
	require.Len(t, cfg.Directory.Subjects, 2)
	assert.Equal(t, auth.RoleSales, cfg.Directory.Subjects[0].Role)
	assert.Equal(t, "Malmö", cfg.Directory.Subjects[1].City())
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes, "unset fields keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "crmcal.yaml", "http:\n  listen: \":7000\"\n")
	t.Setenv("CRMCAL_HTTP_ADDR", ":7100")
	t.Setenv("CRMCAL_GRPC_ADDR", "off")
	t.Setenv("CRMCAL_TOKEN_TTL", "30m")
	t.Setenv("CRMCAL_RATE_LIMIT_BURST", "5")
	t.Setenv("CRMCAL_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CRMCAL_AUTH_ISSUE_TOKENS", "true")

	cfg, err := Load(path, noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.HTTP.Listen)
	assert.Empty(t, cfg.GRPC.Listen)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.True(t, cfg.Auth.IssueTokens)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	env := writeFile(t, "test.env", "CRMCAL_PG_DSN=postgres://from-dotenv\nCRMCAL_LOG_LEVEL=debug\n")
	t.Setenv("CRMCAL_LOG_LEVEL", "warn")
	t.Setenv("CRMCAL_PG_DSN", "")
	require.NoError(t, os.Unsetenv("CRMCAL_PG_DSN"))

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-dotenv", cfg.Postgres.DSN)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noDotEnv(t))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "recurrence:\n  policy: sometimes\n")
	_, err = Load(bad, noDotEnv(t))
	assert.Error(t, err)

	t.Setenv("CRMCAL_TIMEZONE", "Mars/Olympus")
	_, err = Load("", noDotEnv(t))
	assert.Error(t, err)
}

func TestBadEnvNumber(t *testing.T) {
	t.Setenv("CRMCAL_RECURRING_MAX", "lots")
	_, err := Load("", noDotEnv(t))
	assert.Error(t, err)
}
