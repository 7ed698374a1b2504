package credsvc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credsvc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
app:
  id: "12345"
  clientID: "Iv1.abcdef"
  privateKeyFile: "/etc/forgedesk/app.pem"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8743", cfg.Server.ListenAddress)
	assert.Equal(t, "https://github.com", cfg.Upstream.OAuthBaseURL)
	assert.Equal(t, "https://api.github.com", cfg.Upstream.APIBaseURL)
	assert.Equal(t, "forgedesk.auth-events", cfg.Audit.Topic)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
server:
  listenAddress: ":9000"
upstream:
  oauthBaseURL: "https://forge.corp.example"
  apiBaseURL: "https://forge.corp.example/api/v3"
audit:
  brokers: ["kafka-0:9092"]
  topic: "corp.auth"
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddress)
	assert.Equal(t, "https://forge.corp.example", cfg.Upstream.OAuthBaseURL)
	assert.Equal(t, "https://forge.corp.example/api/v3", cfg.Upstream.APIBaseURL)
	assert.Equal(t, []string{"kafka-0:9092"}, cfg.Audit.Brokers)
	assert.Equal(t, "corp.auth", cfg.Audit.Topic)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("CREDSVC_CONFIG", path)

	cfg, err := Load("/nonexistent/other.yaml")
	require.NoError(t, err)
	assert.Equal(t, "12345", cfg.App.ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRequiresAppSettings(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing id", `
app:
  clientID: "Iv1.abcdef"
  privateKeyFile: "/etc/forgedesk/app.pem"
`},
		{"missing clientID", `
app:
  id: "12345"
  privateKeyFile: "/etc/forgedesk/app.pem"
`},
		{"missing privateKeyFile", `
app:
  id: "12345"
  clientID: "Iv1.abcdef"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}
