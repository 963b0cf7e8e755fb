package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/errors"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "varscope dev")
}

func TestConfigCmd(t *testing.T) {
	valid := writeFile(t, "config.yaml", "version: \"1\"\ntraversal:\n  max_struct_depth: 7\n")
	invalid := writeFile(t, "bad.yaml", "version: \"1\"\nlogging:\n  level: loud\n")

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "show", args: []string{"config", "show", "--config", valid}, want: "max_struct_depth: 7"},
		{name: "show keeps defaults", args: []string{"config", "show", "--config", valid}, want: "array_length_limit: 1000"},
		{name: "validate", args: []string{"config", "validate", "--config", valid}, want: "Configuration is valid."},
		{name: "validate reports field", args: []string{"config", "validate", "--config", invalid}, wantErr: "logging.level"},
		{name: "log level flag is validated", args: []string{"config", "validate", "--config", valid, "--log-level", "loud"}, wantErr: "logging.level"},
		{name: "schema", args: []string{"config", "schema"}, want: "varscope configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestPolicyShowCmd(t *testing.T) {
	path := writeFile(t, "app.disambig", "----SECTION----\nglobals\nhead\nP\nbroken\nZ\n")
	config := writeFile(t, "config.yaml", "version: \"1\"\n")

	out, stderr, err := execute(t, "policy", "show", "-f", path, "-o", "csv", "--config", config)
	require.NoError(t, err)
	assert.Equal(t, "SECTION,VARIABLE,LETTER,COERCE\nglobals,head,P,\n", out)
	assert.Contains(t, stderr, "1 malformed line(s) skipped")
}

func TestRequiredFlags(t *testing.T) {
	_, _, err := execute(t, "walk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary")
}

func TestReportable(t *testing.T) {
	v := &errors.ContractViolation{Invariant: "tag-dispatch-exhaustive", Detail: "entry 0x20"}
	wrapped := fmt.Errorf("failed to build graph: %w", v)
	assert.Equal(t, "invariant violated: tag-dispatch-exhaustive: entry 0x20", reportable(wrapped).Error())

	plain := fmt.Errorf("failed to open: %w", os.ErrNotExist)
	assert.Same(t, plain, reportable(plain))
	assert.NoError(t, reportable(nil))
}
