package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/output"
)

// resetFlags puts every flag back to its default so one test's flags do not
// leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","version":"1.2.3"}`)
	})
	mux.HandleFunc("/login", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token":"t-123"}`)
	})
	mux.HandleFunc("/me", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer t-123" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"alice"}`)
	})
	mux.HandleFunc("/items", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const healthRequest = `
[request]
method = "GET"
url = "{{base}}/health"

[assert]
status = 200
"body.status" = "ok"
`

func decodeReport(t *testing.T, stdout string) output.JSONOutput {
	t.Helper()
	var out output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	return out
}

func TestRun_Pass(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)

	code, stdout, _ := execute(t, "run", file, "--var", "base="+srv.URL, "-o", "json")

	assert.Equal(t, ExitSuccess, code)
	report := decodeReport(t, stdout)
	assert.Equal(t, "pass", report.Classification)
	assert.Equal(t, 1, report.Summary.Passed)
}

func TestRun_AssertionFailure(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "items.reqx", `
[request]
method = "GET"
url = "{{base}}/items"

[assert]
"body[0].id" = "exists"
`)

	code, stdout, _ := execute(t, "run", file, "--var", "base="+srv.URL, "-o", "json")

	assert.Equal(t, ExitAssertionFailure, code)
	report := decodeReport(t, stdout)
	require.Len(t, report.Requests, 1)
	require.Len(t, report.Requests[0].Assertions, 1)
	assert.Equal(t, "path not found", report.Requests[0].Assertions[0].Message)
}

func TestRun_UnresolvedVariable(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.reqx", `
[request]
method = "GET"
url = "{{base}}/me"

[headers]
Authorization = "Bearer {{access_token}}"
`)
	writeFile(t, dir, "b.reqx", healthRequest)

	code, stdout, _ := execute(t, "run", dir, "--var", "base="+srv.URL, "-o", "json")

	assert.Equal(t, ExitExecutionError, code)
	report := decodeReport(t, stdout)
	require.Len(t, report.Requests, 2)
	assert.Equal(t, "execution-error", report.Requests[0].Classification)
	assert.Contains(t, report.Requests[0].Error, "access_token")
	assert.Equal(t, "pass", report.Requests[1].Classification)
}

func TestRun_ParseErrorWins(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.reqx", healthRequest)
	writeFile(t, dir, "b.reqx", "[request]\nmethod = \"GET\"\n")

	code, stdout, _ := execute(t, "run", dir, "--var", "base="+srv.URL, "-o", "json")

	assert.Equal(t, ExitParseError, code)
	report := decodeReport(t, stdout)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.ParseErrors)
}

func TestRun_CaptureThenUse(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	login := writeFile(t, dir, "login.reqx", `
[request]
method = "POST"
url = "{{base}}/login"

[post-response]
token = "res.body.token"
`)
	me := writeFile(t, dir, "me.reqx", `
[request]
method = "GET"
url = "{{base}}/me"

[headers]
Authorization = "Bearer {{token}}"

[assert]
status = 200
"body.name" = "alice"
`)

	code, stdout, _ := execute(t, "run", login, me, "--var", "base="+srv.URL, "-o", "json")

	assert.Equal(t, ExitSuccess, code, stdout)
}

func TestRun_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)
	cfg := writeFile(t, dir, ".reqx/config.toml", "[http]\ntimeout = 1000\n")

	tests := []struct {
		name string
		args []string
	}{
		{"missing environment", []string{"run", file, "--config", cfg, "--env", "nope"}},
		{"missing path", []string{"run", filepath.Join(dir, "missing.reqx")}},
		{"no request files", []string{"run", filepath.Join(dir, ".reqx")}},
		{"bad var", []string{"run", file, "--var", "novalue"}},
		{"bad timeout", []string{"run", file, "--timeout", "soon"}},
		{"bad output", []string{"run", file, "-o", "html"}},
		{"unknown flag", []string{"run", file, "--frobnicate"}},
		{"missing config", []string{"run", file, "--config", filepath.Join(dir, "nope.toml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, ExitConfigError, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestRun_EnvironmentFromProject(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)
	cfg := writeFile(t, dir, ".reqx/config.toml", "[variables]\nbase = \"http://unused.invalid\"\n")
	writeFile(t, dir, ".reqx/environments/local.toml", "[variables]\nbase = \"${REQX_TEST_BASE}\"\n")
	t.Setenv("REQX_TEST_BASE", srv.URL)

	code, stdout, _ := execute(t, "run", file, "--config", cfg, "--env", "local", "-o", "json")

	assert.Equal(t, ExitSuccess, code, stdout)
	assert.Equal(t, "local", decodeReport(t, stdout).Environment)
}

func TestRun_OutputFileAndHistory(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)
	reportPath := filepath.Join(dir, "out", "report.xml")
	dbPath := filepath.Join(dir, "history.db")

	code, _, _ := execute(t, "run", file, "--var", "base="+srv.URL, "-o", "junit",
		"--output-file", reportPath, "--history="+dbPath)
	require.Equal(t, ExitSuccess, code)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<testsuites")

	code, stdout, _ := execute(t, "history", "--db", dbPath)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "pass")

	code, stdout, _ = execute(t, "history", "1", "--db", dbPath)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "health")
	assert.Contains(t, stdout, "200")
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)

	code, stdout, _ := execute(t, "run", file, "--dry-run", "--var", "base=http://api.test")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Would run: health (GET {{base}}/health)")

	writeFile(t, dir, "broken.reqx", "not toml [")
	code, _, _ = execute(t, "run", dir, "--dry-run")
	assert.Equal(t, ExitParseError, code)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.reqx", healthRequest)

	code, stdout, _ := execute(t, "validate", good, "--show")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "[request]")

	writeFile(t, dir, "bad.reqx", "[request]\nmethod = \"GET\"\nurl = \"x\"\n[assert]\ncookies = 1\n")
	code, stdout, _ = execute(t, "validate", dir)
	assert.Equal(t, ExitParseError, code)
	assert.Contains(t, stdout, "1 invalid")
}

func TestHealth(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "health.reqx", healthRequest)

	code, stdout, _ := execute(t, "health", file, "--var", "base="+srv.URL, "--interval", "10ms", "--timeout", "2s")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "ready after 1 attempt(s)")

	items := writeFile(t, dir, "items.reqx", `
[request]
method = "GET"
url = "{{base}}/items"

[assert]
"body[0].id" = "exists"
`)
	code, stdout, _ = execute(t, "health", items, "--var", "base="+srv.URL, "--interval", "20ms", "--timeout", "150ms")
	assert.Equal(t, ExitExecutionError, code)
	assert.Contains(t, stdout, "not ready")
}

func TestInit(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()

	code, stdout, stderr := execute(t, "init", dir)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "config.toml")

	cfgPath := filepath.Join(dir, config.DirName, "config.toml")
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", cfg.Variables["api_version"])

	code, _, stderr = execute(t, "init", dir)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "already exists")

	code, stdout, _ = execute(t, "run", filepath.Join(dir, "health.reqx"),
		"--config", cfgPath, "--env", "dev", "--var", "base_url="+srv.URL, "-o", "json")
	assert.Equal(t, ExitSuccess, code, stdout)
}

func TestInit_YAML(t *testing.T) {
	dir := t.TempDir()

	code, _, stderr := execute(t, "init", dir, "--format", "yaml")
	require.Equal(t, ExitSuccess, code, stderr)

	cfg, err := config.LoadConfig(filepath.Join(dir, config.DirName, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.HTTP.Timeout)
	assert.FileExists(t, filepath.Join(dir, config.DirName, "environments", "dev.yaml"))
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "reqx version")
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.reqx", healthRequest)
	writeFile(t, dir, "a.reqx", healthRequest)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "nested/c.reqx", healthRequest)
	writeFile(t, dir, ".reqx/hidden.reqx", healthRequest)
	explicit := filepath.Join(dir, "b.reqx")

	files, err := collectFiles([]string{explicit, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		explicit,
		filepath.Join(dir, "a.reqx"),
		filepath.Join(dir, "nested", "c.reqx"),
	}, files)
}

func TestRelevantChange(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"request written", fsnotify.Event{Name: "api/users.reqx", Op: fsnotify.Write}, true},
		{"request created", fsnotify.Event{Name: "api/new.reqx", Op: fsnotify.Create}, true},
		{"environment renamed", fsnotify.Event{Name: ".reqx/environments/dev.toml", Op: fsnotify.Rename}, true},
		{"dotenv written", fsnotify.Event{Name: ".env", Op: fsnotify.Write}, true},
		{"chmod only", fsnotify.Event{Name: "api/users.reqx", Op: fsnotify.Chmod}, false},
		{"unrelated file", fsnotify.Event{Name: "api/README.md", Op: fsnotify.Write}, false},
		{"editor swap file", fsnotify.Event{Name: "api/.users.reqx.swp", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevantChange(tt.event))
		})
	}
}

func TestParseVarFlags(t *testing.T) {
	vars, err := parseVarFlags([]string{"a=1", "b=x=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "empty": ""}, vars)

	_, err = parseVarFlags([]string{"=1"})
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoggerFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "x"}
		addLoggingFlags(c.Flags())
		require.NoError(t, c.Flags().Parse(args))
		return c
	}

	t.Run("default filters info", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		var buf bytes.Buffer
		logger, err := loggerFromFlags(newCmd(), &buf)
		require.NoError(t, err)
		logger.Info("info-msg")
		logger.Warn("warn-msg")
		assert.NotContains(t, buf.String(), "info-msg")
		assert.Contains(t, buf.String(), "warn-msg")
	})

	t.Run("env enables debug", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		var buf bytes.Buffer
		logger, err := loggerFromFlags(newCmd(), &buf)
		require.NoError(t, err)
		logger.Debug("debug-msg")
		assert.Contains(t, buf.String(), "debug-msg")
	})

	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		var buf bytes.Buffer
		logger, err := loggerFromFlags(newCmd("--log-level", "error"), &buf)
		require.NoError(t, err)
		logger.Warn("warn-msg")
		assert.NotContains(t, buf.String(), "warn-msg")
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := loggerFromFlags(newCmd("--log-level", "loud"), &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitParseError, exitCode(&ExitError{Code: ExitParseError}))
	assert.Equal(t, ExitConfigError, exitCode(config.Errorf("", "bad")))
	assert.Equal(t, ExitConfigError, exitCode(fmt.Errorf("unknown flag")))
	assert.NoError(t, exitWith(ExitSuccess))
}
