package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buildFile = `
model "tiny" {
  version          = var.version
  trunk_channels   = 4
  mid_channels     = 3
  regular_channels = 3
  gpool_channels   = 2
  p1_channels      = 2
  g1_channels      = 2
  pass_channels    = 3
  v1_channels      = 2
  v2_channels      = 3
  activation       = "mish"

  block "ordinary" {}
  block "nested_bottleneck" {
    block "gpool" {}
  }
}

build {
  board_x = 9
  board_y = 9
}
`

func writeBuildFile(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "tiny.hcl")
	require.NoError(t, os.WriteFile(path, []byte(buildFile), 0o600))
	return dir, path
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, code, exitErr.Code, exitErr.Message)
}

func TestRunUsage(t *testing.T) {
	out := &bytes.Buffer{}
	requireExitCode(t, run(out, &bytes.Buffer{}, nil), 2)
	assert.Contains(t, out.String(), "Usage:")

	out.Reset()
	require.NoError(t, run(out, &bytes.Buffer{}, []string{"help"}))
	assert.Contains(t, out.String(), "katacoreml build")

	requireExitCode(t, run(out, &bytes.Buffer{}, []string{"convert"}), 2)
}

func TestRunVersion(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, run(out, &bytes.Buffer{}, []string{"version"}))
	assert.Equal(t, "katacoreml dev\n", out.String())
}

func TestRunBuildAndInspect(t *testing.T) {
	dir, cfgPath := writeBuildFile(t)
	pkg := filepath.Join(dir, "tiny.mlpackage")

	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	err := run(out, logs, []string{"build", "-var", "version=16", "-o", pkg, "-log-level", "debug", "-log-format", "json", cfgPath})
	require.NoError(t, err, logs.String())
	assert.Contains(t, out.String(), pkg)
	assert.Contains(t, logs.String(), `"msg":"Package written."`)

	out.Reset()
	require.NoError(t, run(out, logs, []string{"inspect", "-format", "json", pkg}))
	var report struct {
		Opset   string `json:"opset"`
		Outputs []struct {
			Name  string `json:"name"`
			Shape []int  `json:"shape"`
		} `json:"outputs"`
		Operations int `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "CoreML5", report.Opset)
	require.Len(t, report.Outputs, 5)
	assert.Equal(t, "output_policy", report.Outputs[0].Name)
	assert.Equal(t, []int{1, 4, 9, 9}, report.Outputs[0].Shape)
	assert.Positive(t, report.Operations)

	out.Reset()
	require.NoError(t, run(out, logs, []string{"inspect", "-format", "yaml", pkg}))
	assert.Contains(t, out.String(), "opset: CoreML5")

	out.Reset()
	require.NoError(t, run(out, logs, []string{"inspect", "-no-color", pkg}))
	text := out.String()
	assert.Contains(t, text, "output_ownership")
	assert.Contains(t, text, "model.mlmodel")
	assert.Contains(t, text, "katacoreml.model_name = tiny")

	requireExitCode(t, run(out, logs, []string{"inspect", "-format", "xml", pkg}), 2)
}

func TestRunBuildCollision(t *testing.T) {
	dir, cfgPath := writeBuildFile(t)
	pkg := filepath.Join(dir, "tiny.mlpackage")
	args := []string{"build", "-var", "version=8", "-o", pkg, cfgPath}

	require.NoError(t, run(&bytes.Buffer{}, &bytes.Buffer{}, args))
	requireExitCode(t, run(&bytes.Buffer{}, &bytes.Buffer{}, args), 4)

	force := append([]string{"build", "-force"}, args[1:]...)
	require.NoError(t, run(&bytes.Buffer{}, &bytes.Buffer{}, force))
}

func TestRunBuildErrors(t *testing.T) {
	dir, cfgPath := writeBuildFile(t)
	pkg := filepath.Join(dir, "tiny.mlpackage")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "missing file", args: []string{"build"}, code: 2},
		{name: "undefined variable", args: []string{"build", cfgPath}, code: 2},
		{name: "bad variable", args: []string{"build", "-var", "version", cfgPath}, code: 2},
		{name: "bad log format", args: []string{"build", "-log-format", "xml", cfgPath}, code: 2},
		{name: "bad log level", args: []string{"build", "-log-level", "trace", cfgPath}, code: 2},
		{name: "unknown flag", args: []string{"build", "-nope", cfgPath}, code: 2},
		{name: "unsupported version", args: []string{"build", "-var", "version=2", "-o", pkg, cfgPath}, code: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireExitCode(t, run(&bytes.Buffer{}, &bytes.Buffer{}, tt.args), tt.code)
			_, err := os.Stat(pkg)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestRunTemplateThenBuild(t *testing.T) {
	dir, cfgPath := writeBuildFile(t)
	weightsPath := filepath.Join(dir, "tiny.safetensors")

	out := &bytes.Buffer{}
	require.NoError(t, run(out, &bytes.Buffer{}, []string{"template", "-var", "version=15", "-o", weightsPath, cfgPath}))
	assert.Contains(t, out.String(), weightsPath)

	pkg := filepath.Join(dir, "tiny.mlpackage")
	require.NoError(t, run(&bytes.Buffer{}, &bytes.Buffer{},
		[]string{"build", "-var", "version=15", "-weights", weightsPath, "-o", pkg, cfgPath}))

	requireExitCode(t, run(&bytes.Buffer{}, &bytes.Buffer{},
		[]string{"build", "-var", "version=8", "-weights", weightsPath, "-o", pkg, "-force", cfgPath}), 1)
}

func TestRunInspectMissing(t *testing.T) {
	requireExitCode(t, run(&bytes.Buffer{}, &bytes.Buffer{}, []string{"inspect"}), 2)
	requireExitCode(t, run(&bytes.Buffer{}, &bytes.Buffer{}, []string{"inspect", filepath.Join(t.TempDir(), "x")}), 1)
}
