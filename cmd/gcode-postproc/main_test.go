package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolpath-postproc/pkg/gcodefile"
)

const testJob = "G28\nG1 Z0.3 F600\n" +
	";LAYER_CHANGE\n" +
	";_EXTRUSION_ROLE:1\n" +
	"G1 X0 Y0 F9000\n" +
	"G1 F3000;_EXTRUDE_SET_SPEED\n" +
	"G1 X20 Y0 E1\n" +
	"G1 X20 Y20 E2\n" +
	"G1 X0 Y20 E3\n" +
	";_EXTRUDE_END\n"

const testProfile = "[extruder]\nslow_down_layer_time: 3\nslow_down_min_speed: 5\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gcode-postproc dev")
}

func TestProcessWithSuffix(t *testing.T) {
	dir := t.TempDir()
	profile := writeFile(t, dir, "printer.cfg", testProfile)
	in := writeFile(t, dir, "part.gcode", testJob)
	metricsOut := filepath.Join(dir, "metrics.prom")

	_, err := execute(t, "process", "-c", profile, "--suffix", ".pp", "--metrics-out", metricsOut, in)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "part.pp.gcode"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "G28\nG1 Z0.3 F600\n")
	assert.Contains(t, out, "G1 F1199\n")
	assert.NotContains(t, out, ";_EXTRUDE_SET_SPEED")

	original, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, testJob, string(original))

	prom, err := os.ReadFile(metricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "gcode_postproc_layers_total")
}

func TestProcessCompressedInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part.gcode.zst")
	w, err := gcodefile.Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, testJob)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = execute(t, "process", "--min-layer-time", "3", path)
	require.NoError(t, err)

	r, err := gcodefile.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Contains(t, string(data), "G1 F1199\n")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	a := writeFile(t, dir, "a.gcode", testJob)
	b := writeFile(t, dir, "b.gcode", testJob)

	_, err := execute(t, "process", "-j", "2", "--output-dir", outDir, a, b)
	require.NoError(t, err)

	for _, name := range []string{"a.gcode", "b.gcode"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err)
	}
}

func TestProcessReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.gcode", testJob)

	_, err := execute(t, "process", "--suffix", ".pp", good,
		filepath.Join(dir, "missing1.gcode"), filepath.Join(dir, "missing2.gcode"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing1.gcode")
	assert.Contains(t, err.Error(), "missing2.gcode")
	_, statErr := os.Stat(filepath.Join(dir, "good.pp.gcode"))
	assert.NoError(t, statErr)
}

func TestProcessRejectsBadArguments(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.gcode", testJob)
	b := writeFile(t, dir, "b.gcode", testJob)
	bad := writeFile(t, dir, "bad.cfg", "[extruder]\nfan_max_speed: 150\n")

	_, err := execute(t, "process", "-o", filepath.Join(dir, "x.gcode"), a, b)
	assert.ErrorContains(t, err, "--output")

	_, err = execute(t, "process", "-c", bad, a)
	assert.ErrorContains(t, err, "fan_max_speed")

	good := writeFile(t, dir, "good.cfg", testProfile)
	_, err = execute(t, "process", "-c", good, "-c", bad, a)
	assert.ErrorContains(t, err, "fan_max_speed")

	_, err = execute(t, "process", "--slope", "-1", a)
	assert.ErrorContains(t, err, "slope_positive")
}

func TestEstimate(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", testJob)

	out, err := execute(t, "estimate", in)
	require.NoError(t, err)
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "total (1 layers)")
	assert.Contains(t, out, "1.20")

	out, err = execute(t, "estimate", "--summary", in)
	require.NoError(t, err)
	assert.NotContains(t, out, "start")
	assert.Contains(t, out, "total (1 layers)")
}
