package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
auth:
  username: "2026010001"
  password: secret
ocr:
  user: cjy
  pass2: 0123abcd
  softid: "96001"
semester: 2026-2027-1
courses:
  CS101: [1]
  CS102: [1, 2]
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvUsername, EnvPassword, EnvOCRUser, EnvOCRPass, EnvOpenAIKey, EnvOpenAIBase} {
		t.Setenv(k, "")
	}
}

func TestParse_Minimal(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, Credentials{Username: "2026010001", Password: "secret"}, cfg.Auth)
	assert.Equal(t, "2026-2027-1", cfg.Semester)
	assert.False(t, cfg.DegreeTrack)
	assert.Equal(t, Courses{
		{ID: "CS101", Sections: []string{"1"}},
		{ID: "CS102", Sections: []string{"1", "2"}},
	}, cfg.Courses)

	// defaults survive
	assert.Equal(t, "bulk", cfg.SubmitMode)
	assert.Equal(t, "contains", cfg.Classify.Mode)
	assert.Equal(t, ProviderChaojiying, cfg.OCR.Provider)
	assert.Equal(t, 10*time.Second, cfg.Timings.AttemptTimeout)
	assert.Equal(t, "results", cfg.ResultsDir)
	assert.Equal(t, "qk.log", cfg.Log.Path)
	assert.True(t, cfg.Browser.Headless)
	assert.Nil(t, cfg.IgnoreResponses)
}

func TestParse_EmptyIgnoreResponses(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML + "ignore_responses: []\n"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.IgnoreResponses)
	assert.Empty(t, cfg.IgnoreResponses)
}

func TestParse_Overrides(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML + `
degree_track: true
submit_mode: single
classify:
  mode: template
  template: "*成功*"
timings:
  attempt_timeout: 30s
  login_backoff: 1500ms
ignore_responses: ["*.svg"]
browser:
  headless: false
site:
  base_url: http://localhost:8080
metrics:
  listen: 127.0.0.1:9100
`))
	require.NoError(t, err)

	assert.True(t, cfg.DegreeTrack)
	assert.Equal(t, "single", cfg.SubmitMode)
	assert.Equal(t, "*成功*", cfg.Classify.Template)
	assert.Equal(t, 30*time.Second, cfg.Timings.AttemptTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timings.LoginBackoff)
	assert.Equal(t, 2*time.Second, cfg.Timings.Pacing, "unset timings keep defaults")
	assert.Equal(t, []string{"*.svg"}, cfg.IgnoreResponses)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://localhost:8080", cfg.Site.BaseURL)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
}

func TestParse_TokenList(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(`
auth: {username: u, password: p}
ocr: {user: a, pass2: b, softid: c}
semester: 2026-2027-1
courses:
  - "2026-2027-1;CS101;1;"
  - "2026-2027-1;MA201;0;"
`))
	require.NoError(t, err)
	assert.Equal(t, Courses{
		{Token: "2026-2027-1;CS101;1;"},
		{Token: "2026-2027-1;MA201;0;"},
	}, cfg.Courses)
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPassword, "from-env")
	t.Setenv(EnvOCRPass, "hash-from-env")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Password)
	assert.Equal(t, "hash-from-env", cfg.OCR.Pass2)
	assert.Equal(t, "2026010001", cfg.Auth.Username)
}

func TestParse_OpenAIProvider(t *testing.T) {
	clearEnv(t)
	data := []byte(`
auth: {username: u, password: p}
ocr: {provider: openai}
semester: 2026-2027-1
courses: {CS101: 1}
`)

	_, err := Parse(data)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Error(), "ocr.api_key")

	t.Setenv(EnvOpenAIKey, "sk-test")
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OCR.APIKey)
	assert.Equal(t, []string{"1"}, cfg.Courses[0].Sections)
}

func TestValidate_ReportsEveryField(t *testing.T) {
	clearEnv(t)

	_, err := Parse([]byte(`
auth: {username: u}
ocr: {user: a, pass2: b, softid: c}
submit_mode: parallel
classify: {mode: template}
timings: {attempt_timeout: 0s}
courses: {}
`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{
		"auth.password",
		"semester",
		"courses",
		"submit_mode",
		"classify.template",
		"timings.attempt_timeout",
	} {
		assert.True(t, fields[want], "missing error for %s in %v", want, verr)
	}
}

func TestValidate_Courses(t *testing.T) {
	cfg := Default()
	cfg.Auth = Credentials{Username: "u", Password: "p"}
	cfg.OCR.User, cfg.OCR.Pass2, cfg.OCR.SoftID = "a", "b", "c"
	cfg.Semester = "2026-2027-1"
	cfg.Courses = Courses{
		{ID: "CS101", Sections: []string{"1"}},
		{ID: "CS101", Sections: []string{"2"}},
		{ID: "CS;102", Sections: []string{"1"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CS101 is listed twice")
	assert.Contains(t, err.Error(), `course id "CS;102" contains ';'`)
}

func TestParse_BadShapes(t *testing.T) {
	clearEnv(t)

	tests := map[string]string{
		"scalar courses": "courses: CS101",
		"nested token":   "courses:\n  - {id: CS101}",
		"empty sections": "courses:\n  CS101: []",
		"bad duration":   "timings: {pacing: soon}",
		"malformed yaml": "courses: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-2027-1", cfg.Semester)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte("COURSEBOT_TEST_ONLY=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("COURSEBOT_TEST_ONLY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("COURSEBOT_TEST_ONLY"))

	assert.Error(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}
