package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	root := &cli.Command{
		Name:     "secaudit",
		Writer:   &out,
		Commands: []*cli.Command{hexdumpCommand(), fridaCommand()},
	}
	err := root.Run(context.Background(), append([]string{"secaudit"}, args...))
	return out.String(), err
}

func TestHexdump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.bin")
	require.NoError(t, os.WriteFile(path, []byte("Hello"), 0644))

	out, err := runCLI(t, "hexdump", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "00000000  48 65 6C 6C 6F"))
	assert.Contains(t, out, "|Hello|")
}

func TestHexdump_ArgCount(t *testing.T) {
	_, err := runCLI(t, "hexdump")
	assert.ErrorIs(t, err, errInvalidArgCount)
}

func TestFrida_RejectsBeforeCallingModel(t *testing.T) {
	_, err := runCLI(t, "frida", "--hook", "custom_hook")
	assert.Error(t, err)

	_, err = runCLI(t, "frida", "--hook", "keylogger")
	assert.Error(t, err)
}
