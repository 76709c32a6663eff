package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casbot/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server_config.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunValidate(t *testing.T) {
	t.Run("valid file lists every section", func(t *testing.T) {
		path := writeConfig(t, "[main]\nserverid = 101\ngrantroles = Member\n\n[lab]\nserverid = 202\ngrantroles = Member, Student\nis_academic = true\n")
		var out bytes.Buffer

		require.NoError(t, runValidate(&out, path))
		assert.Equal(t, "main config is valid!\nlab config is valid!\n2 server(s) configured\n", out.String())
	})

	t.Run("first invalid section stops the run", func(t *testing.T) {
		path := writeConfig(t, "[main]\nserverid = 101\ngrantroles = Member\n\n[broken]\ngrantroles = Member\n")
		var out bytes.Buffer

		err := runValidate(&out, path)
		var verr *policy.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, out.String(), "main config is valid!")
		assert.NotContains(t, out.String(), "server(s) configured")
	})

	t.Run("missing file", func(t *testing.T) {
		var out bytes.Buffer
		require.Error(t, runValidate(&out, filepath.Join(t.TempDir(), "absent.ini")))
		assert.Empty(t, out.String())
	})
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	cmd, _, err := root.Find([]string{"config", "validate"})
	require.NoError(t, err)
	assert.Equal(t, "validate [file]", cmd.Use)

	cmd, _, err = root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Use)
}
