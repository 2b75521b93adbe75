package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
)

// writeConfig creates a YAML config pointing the local driver at a fresh
// directory and returns the config path and that directory.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	cfgPath := filepath.Join(dir, "storekit.yaml")
	content := "driver: local\nlocal_base_path: " + root + "\nsanity_check: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, root
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPutCatStat(t *testing.T) {
	cfg, root := writeConfig(t)

	out, err := run(t, "hello world", "--config", cfg, "put", "greetings/hello.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 11 B to greetings/hello.txt")

	data, err := os.ReadFile(filepath.Join(root, "greetings", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	out, err = run(t, "", "--config", cfg, "cat", "greetings/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	out, err = run(t, "", "--config", cfg, "cat", "--offset", "6", "--length", "3", "greetings/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "wor", out)

	out, err = run(t, "", "--config", cfg, "stat", "greetings/hello.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode:")
	assert.Contains(t, out, "file")
	assert.Contains(t, out, "(11 bytes)")
	assert.Contains(t, out, "text/plain")
}

func TestPutFromFile(t *testing.T) {
	cfg, root := writeConfig(t)

	src := filepath.Join(t.TempDir(), "local.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o600))

	_, err := run(t, "", "--config", cfg, "put", "--if-not-exists", "reports/q1.csv", src)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "reports", "q1.csv"))
	require.NoError(t, err)

	_, err = run(t, "", "--config", cfg, "put", "--if-not-exists", "reports/q1.csv", src)
	assert.True(t, storekit.IsExist(err), "got %v", err)
}

func TestList(t *testing.T) {
	cfg, _ := writeConfig(t)

	for _, p := range []string{"docs/a.txt", "docs/b.txt", "docs/sub/c.txt"} {
		_, err := run(t, p, "--config", cfg, "put", p)
		require.NoError(t, err)
	}

	out, err := run(t, "", "--config", cfg, "ls", "docs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"docs/a.txt", "docs/b.txt", "docs/sub/"}, lines)

	out, err = run(t, "", "--config", cfg, "ls", "-r", "docs/")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/sub/c.txt")

	out, err = run(t, "", "--config", cfg, "ls", "-lH", "docs/")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		require.NotEmpty(t, fields)
		if strings.HasSuffix(line, "/") {
			assert.Equal(t, "d", fields[0], line)
		} else {
			assert.Equal(t, "-", fields[0], line)
			assert.Equal(t, "10", fields[1], line)
		}
	}
}

func TestFind(t *testing.T) {
	cfg, _ := writeConfig(t)

	for _, p := range []string{"logs/app.log", "logs/2024/old.log", "logs/2024/old.txt", "notes.txt"} {
		_, err := run(t, p, "--config", cfg, "put", p)
		require.NoError(t, err)
	}

	out, err := run(t, "", "--config", cfg, "find", "--name", "*.log")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"logs/app.log", "logs/2024/old.log"}, lines)

	out, err = run(t, "", "--config", cfg, "find", "--max-depth", "1", "--files", "logs/")
	require.NoError(t, err)
	assert.Equal(t, "logs/app.log", strings.TrimSpace(out))

	_, err = run(t, "", "--config", cfg, "find", "--name", "[")
	assert.Contains(t, formatError(err), "invalid configuration")
}

func TestRemove(t *testing.T) {
	cfg, root := writeConfig(t)

	for _, p := range []string{"tmp/a", "tmp/x/b", "keep"} {
		_, err := run(t, "x", "--config", cfg, "put", p)
		require.NoError(t, err)
	}

	_, err := run(t, "", "--config", cfg, "rm", "tmp/")
	kind, _ := storekit.KindOf(err)
	assert.Equal(t, storekit.KindNotEmpty, kind)

	_, err = run(t, "", "--config", cfg, "rm", "-r", "tmp/")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "tmp", "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "keep"))
	require.NoError(t, err)
}

func TestReadOnlyFlag(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "x", "--config", cfg, "--read-only", "put", "blocked.txt")
	require.Error(t, err)
	assert.True(t, storekit.IsReadOnlyError(err), "got %v", err)
	assert.Equal(t, "Error: storage is read-only", formatError(err))
}

func TestPresignUnsupported(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "", "--config", cfg, "presign", "file.txt")
	require.Error(t, err)
	assert.True(t, storekit.IsNotSupported(err), "got %v", err)
	assert.Contains(t, formatError(err), "not supported")
}

func TestDriverFlagOverridesConfig(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "", "--config", cfg, "--driver", "nope", "ls")
	require.Error(t, err)
	assert.Contains(t, formatError(err), "invalid configuration")
}

func TestLoadConfig(t *testing.T) {
	cfgPath, root := writeConfig(t)

	cfg, err := loadConfig(&globalOptions{configFile: cfgPath, noSanity: true, verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Driver)
	assert.Equal(t, root, cfg.LocalBasePath)
	assert.False(t, cfg.SanityCheck)
	assert.True(t, cfg.LogEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = loadConfig(&globalOptions{configFile: filepath.Join(t.TempDir(), "missing.yaml")})
	kind, _ := storekit.KindOf(err)
	assert.Equal(t, storekit.KindConfigInvalid, kind)
}

func TestDriversCommand(t *testing.T) {
	out, err := run(t, "", "drivers")
	require.NoError(t, err)
	for _, name := range []string{"azure", "consul", "gcs", "local", "memory", "s3", "sftp", "sqlite", "zip"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "storekit dev")
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", context.Canceled, "Error: operation canceled"},
		{"not found", storekit.PathErr(storekit.KindNotFound, storekit.OpStat, "a", nil), "Error: not found:"},
		{"permission", storekit.PathErr(storekit.KindPermissionDenied, storekit.OpRead, "a", nil), "Error: permission denied:"},
		{"unexpected", storekit.PathErr(storekit.KindUnexpected, storekit.OpList, "a", nil), "Error: backend returned malformed metadata:"},
		{"config", storekit.NewError(storekit.KindConfigInvalid, "driver is required"), "Error: invalid configuration:"},
		{"other", errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatError(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.True(t, strings.HasPrefix(got, tt.want), "got %q", got)
		})
	}
}
