package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envFrom(vals map[string]string) func(string) string {
	return func(key string) string { return vals[key] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"AZURE_OPENAI_ENDPOINT":        "https://example.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT_NAME": "gpt-4o-mini",
		"AZURE_OPENAI_API_KEY":         "super-secret-key",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(envFrom(baseEnv()))
	require.NoError(t, err)
	require.Equal(t, "https://example.openai.azure.com", cfg.Endpoint)
	require.Equal(t, "gpt-4o-mini", cfg.DeploymentName)
	require.Equal(t, "super-secret-key", cfg.APIKey)
	require.Equal(t, defaultAPIVersion, cfg.APIVersion)
	require.Equal(t, "8000", cfg.Port)
	require.Equal(t, ":8000", cfg.Addr())
	require.Equal(t, RunModeHTTP, cfg.RunMode)
	require.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
	require.Zero(t, cfg.UpstreamMaxRetries)
	require.Zero(t, cfg.MaxMessageLength)
	require.True(t, cfg.MetricsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["RUN_MODE"] = "Lambda"
	env["UPSTREAM_TIMEOUT"] = "5s"
	env["UPSTREAM_MAX_RETRIES"] = "2"
	env["MAX_MESSAGE_LENGTH"] = "500"
	env["METRICS_ENABLED"] = "false"
	env["AZURE_OPENAI_API_VERSION"] = "2024-06-01"
	env["SYSTEM_PROMPT"] = "  Be brief.  "

	cfg, err := Load(envFrom(env))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr())
	require.Equal(t, RunModeLambda, cfg.RunMode)
	require.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, 2, cfg.UpstreamMaxRetries)
	require.Equal(t, 500, cfg.MaxMessageLength)
	require.False(t, cfg.MetricsEnabled)
	require.Equal(t, "2024-06-01", cfg.APIVersion)
	require.Equal(t, "Be brief.", cfg.SystemPrompt)
}

func TestLoad_KeyFromParam(t *testing.T) {
	env := baseEnv()
	delete(env, "AZURE_OPENAI_API_KEY")
	env["AZURE_OPENAI_API_KEY_PARAM"] = "/chat-relay/azure-openai-key"

	cfg, err := Load(envFrom(env))
	require.NoError(t, err)
	require.Empty(t, cfg.APIKey)
	require.Equal(t, "/chat-relay/azure-openai-key", cfg.APIKeyParam)
}

func TestLoad_MissingRequired_ReportsAll(t *testing.T) {
	_, err := Load(envFrom(map[string]string{}))
	require.Error(t, err)
	require.ErrorContains(t, err, "AZURE_OPENAI_ENDPOINT")
	require.ErrorContains(t, err, "AZURE_OPENAI_DEPLOYMENT_NAME")
	require.ErrorContains(t, err, "AZURE_OPENAI_API_KEY")
}

func TestLoad_BothCredentialSources(t *testing.T) {
	env := baseEnv()
	env["AZURE_OPENAI_API_KEY_PARAM"] = "/p"
	_, err := Load(envFrom(env))
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"AZURE_OPENAI_ENDPOINT", "not a url", "AZURE_OPENAI_ENDPOINT"},
		{"AZURE_OPENAI_ENDPOINT", "ftp://example.com", "AZURE_OPENAI_ENDPOINT"},
		{"PORT", "abc", "PORT"},
		{"PORT", "70000", "PORT"},
		{"RUN_MODE", "grpc", "RUN_MODE"},
		{"UPSTREAM_TIMEOUT", "soon", "UPSTREAM_TIMEOUT"},
		{"UPSTREAM_TIMEOUT", "-1s", "UPSTREAM_TIMEOUT"},
		{"UPSTREAM_MAX_RETRIES", "-1", "UPSTREAM_MAX_RETRIES"},
		{"MAX_MESSAGE_LENGTH", "lots", "MAX_MESSAGE_LENGTH"},
		{"METRICS_ENABLED", "maybe", "METRICS_ENABLED"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.val
			_, err := Load(envFrom(env))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad_ErrorNeverContainsSecret(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "bad"
	_, err := Load(envFrom(env))
	require.Error(t, err)
	require.NotContains(t, err.Error(), "super-secret-key")
}
