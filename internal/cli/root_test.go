package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/logparse/internal/cli/commands"
	"github.com/plc-visualizer/logparse/internal/export"
)

const cleanLog = "2024-01-15 10:30:45.123 [INFO] [SYSTEM/LINE1/PLC1@D19] [DRIVE:MOTOR_RUN] (bool) : TRUE\n" +
	"2024-01-15 10:30:46.000 [INFO] [SYSTEM/LINE1/PLC1@D19] [DRIVE:SPEED] (int) : 1500\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "plclog.yaml")
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"--config", cfgPath, "--log-level", "error"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_ParseSummary(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plc.log", cleanLog)

	code, out, _ := run(t, "parse", path)

	assert.Equal(t, commands.ExitOK, code)
	assert.Contains(t, out, "Dialect:  plc_debug")
	assert.Contains(t, out, "Entries:  2")
	assert.Contains(t, out, "Signals:  2")
	assert.Contains(t, out, "Errors:   0")
}

func TestRun_ParseLineErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plc.log", cleanLog+"this line is broken\n")

	code, out, _ := run(t, "parse", "-w", "2", path)

	assert.Equal(t, commands.ExitLineErrors, code)
	assert.Contains(t, out, "Errors:   1")
	assert.Contains(t, out, "Line 3")
}

func TestRun_ParseJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plc.log", cleanLog)

	code, out, _ := run(t, "parse", "--format", "json", path)
	require.Equal(t, commands.ExitOK, code)

	res, err := export.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"PLC1::MOTOR_RUN", "PLC1::SPEED"}, res.Data.Signals.Keys())
	assert.Equal(t, true, res.Data.Entries[0].Value)
	assert.Equal(t, int64(1500), res.Data.Entries[1].Value)
}

func TestRun_ParseMsgpackToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plc.log", cleanLog)
	outPath := filepath.Join(dir, "out.msgpack")

	code, _, _ := run(t, "parse", "-f", "msgpack", "-o", outPath, path)
	require.Equal(t, commands.ExitOK, code)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	res, err := export.ReadMsgpack(f)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data.EntryCount)
}

func TestRun_ParseMergeWithDB(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "2025-09-22 13:00:02.000 [Debug] [P/DEV-A] [IN:X] (bool) : ON\n")
	b := writeFile(t, dir, "b.log", "2025-09-22 13:00:01.000 [Debug] [P/DEV-B] [IN:Y] (bool) : OFF\n")
	dbPath := filepath.Join(dir, "plc.duckdb")

	code, out, _ := run(t, "parse", "--merge", "--db", dbPath, "--format", "json", a, b)
	require.Equal(t, commands.ExitOK, code)

	res, err := export.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, res.Data.Entries, 2)
	assert.Equal(t, "DEV-B", res.Data.Entries[0].DeviceID)
	assert.Equal(t, b, res.Data.Entries[0].SourceID)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRun_ParseFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plc.log", cleanLog)

	t.Run("missing file", func(t *testing.T) {
		code, out, _ := run(t, "parse", filepath.Join(dir, "nope.log"))
		assert.Equal(t, commands.ExitFatal, code)
		assert.Contains(t, out, "failed to read file")
	})

	t.Run("unknown dialect", func(t *testing.T) {
		code, out, _ := run(t, "parse", "-d", "nope", path)
		assert.Equal(t, commands.ExitFatal, code)
		assert.Contains(t, out, `unknown dialect "nope"`)
	})

	t.Run("bad format", func(t *testing.T) {
		code, _, errOut := run(t, "parse", "-f", "xml", path)
		assert.Equal(t, commands.ExitFatal, code)
		assert.Contains(t, errOut, "unknown format")
	})

	t.Run("no args", func(t *testing.T) {
		code, _, _ := run(t, "parse")
		assert.Equal(t, commands.ExitFatal, code)
	})
}

func TestRun_Detect(t *testing.T) {
	dir := t.TempDir()
	debug := writeFile(t, dir, "debug.log", cleanLog)
	tab := writeFile(t, dir, "tab.log",
		"2024-01-15 10:30:45.123 [] /PLC/Dev1\tSIG\tIN\tON\n"+
			"2024-01-15 10:30:46.123 [] /PLC/Dev1\tSIG\tIN\tOFF\n")
	junk := writeFile(t, dir, "junk.txt", "hello\nworld\n")

	code, out, _ := run(t, "detect", debug, tab)
	assert.Equal(t, commands.ExitOK, code)
	assert.Contains(t, out, debug+": plc_debug")
	assert.Contains(t, out, tab+": plc_tab")

	code, out, _ = run(t, "detect", junk)
	assert.Equal(t, commands.ExitFatal, code)
	assert.Contains(t, out, "no matching dialect")
}

func TestRun_Dialects(t *testing.T) {
	code, out, _ := run(t, "dialects")

	assert.Equal(t, commands.ExitOK, code)
	assert.Equal(t, "plc_debug (default)\nplc_tab\ncsv_signal\n", out)
}

func TestRun_Version(t *testing.T) {
	code, out, _ := run(t, "version")

	assert.Equal(t, commands.ExitOK, code)
	assert.Equal(t, "plclog dev\n", out)
}

func TestRun_BadLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cfgPath := filepath.Join(t.TempDir(), "plclog.yaml")

	code := Run([]string{"--config", cfgPath, "--log-level", "loud", "dialects"}, &stdout, &stderr)

	assert.Equal(t, commands.ExitFatal, code)
	assert.Contains(t, stderr.String(), "invalid --log-level")
}

func TestNewRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand(commands.NewApp("x"))

	for _, flag := range []string{"config", "log-level", "log-json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
	for _, name := range []string{"parse", "detect", "dialects", "serve", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}
