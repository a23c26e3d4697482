package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gookit/color"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/katacoreml/coreml"
	"github.com/born-ml/katacoreml/internal/config"
	"github.com/born-ml/katacoreml/internal/ctxlog"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/weights"
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func fail(err error) error {
	return &ExitError{Code: exitCode(err), Message: err.Error()}
}

// loadConfig reads the build file named by the first positional argument.
func loadConfig(ctx context.Context, fs interface{ Arg(int) string }, vars []string) (*config.Config, error) {
	path := fs.Arg(0)
	if path == "" {
		return nil, &ExitError{Code: 2, Message: "missing BUILD_FILE argument"}
	}
	values, err := config.ParseVars(vars)
	if err != nil {
		return nil, fail(err)
	}
	cfg, err := config.Load(ctx, path, values)
	if err != nil {
		return nil, fail(err)
	}
	return cfg, nil
}

func runBuild(outW, errW io.Writer, args []string) error {
	fs := newFlagSet("build", "[options] BUILD_FILE", outW)
	var logs logFlags
	logs.register(fs)
	var vars varsFlag
	fs.Var(&vars, "var", "Set a build file variable as name=value. Repeatable.")
	output := fs.String("o", "", "Output package path. Overrides the build file.")
	weightsPath := fs.String("weights", "", "SafeTensors weights file. Overrides the build file.")
	specVersion := fs.Int("spec-version", 0, "Core ML specification version (6-9). Overrides the build file.")
	force := fs.Bool("force", false, "Replace an existing package at the output path.")

	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if err := logs.validate(); err != nil {
		return err
	}

	logger := ctxlog.New(logs.level, logs.format, errW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	cfg, err := loadConfig(ctx, fs, vars)
	if err != nil {
		return err
	}
	if *output != "" {
		cfg.Package.Output = *output
	}
	if *weightsPath != "" {
		cfg.Build.Weights = *weightsPath
	}
	if *specVersion != 0 {
		cfg.Build.SpecificationVersion = *specVersion
	}
	if *force {
		cfg.Package.Overwrite = true
	}

	opts, err := coreml.OptionsFromConfig(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	res, err := coreml.Build(ctx, opts)
	if err != nil {
		return fail(err)
	}

	fmt.Fprintf(outW, "%s %s (%s, %d ops, %d weight bytes)\n",
		color.Green.Sprint("wrote"), res.Output, res.Opset, res.Operations, res.BlobBytes)
	return nil
}

func runTemplate(outW, errW io.Writer, args []string) error {
	fs := newFlagSet("template", "[options] BUILD_FILE", outW)
	var vars varsFlag
	fs.Var(&vars, "var", "Set a build file variable as name=value. Repeatable.")
	output := fs.String("o", "", "Output SafeTensors path. Defaults to <model>.safetensors.")

	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New("warn", "text", errW))

	cfg, err := loadConfig(ctx, fs, vars)
	if err != nil {
		return err
	}

	rec := weights.NewRecorder(weights.Zeros{})
	if _, err := desc.FromArchitecture(cfg.Model, rec); err != nil {
		return fail(err)
	}
	tensors := make(map[string]weights.Tensor, len(rec.Seen))
	for _, name := range rec.Seen.Names() {
		data := rec.Seen[name]
		tensors[name] = weights.Tensor{Shape: []int{len(data)}, Data: data}
	}

	path := *output
	if path == "" {
		path = cfg.Model.Name + ".safetensors"
	}
	meta := map[string]string{"model": cfg.Model.Name, "model_version": fmt.Sprint(cfg.Model.ModelVersion)}
	if err := weights.WriteSafeTensors(path, tensors, meta); err != nil {
		return fail(err)
	}
	fmt.Fprintf(outW, "%s %s (%d tensors)\n", color.Green.Sprint("wrote"), path, len(tensors))
	return nil
}

func runInspect(outW io.Writer, args []string) error {
	fs := newFlagSet("inspect", "[options] PACKAGE", outW)
	format := fs.String("format", "text", "Output format. Options: 'text', 'json' or 'yaml'.")
	noColor := fs.Bool("no-color", false, "Disable colored text output.")

	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if fs.Arg(0) == "" {
		return &ExitError{Code: 2, Message: "missing PACKAGE argument"}
	}

	r, err := coreml.Inspect(fs.Arg(0))
	if err != nil {
		return fail(err)
	}

	switch strings.ToLower(*format) {
	case "json":
		enc := json.NewEncoder(outW)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(outW)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		if *noColor {
			color.Enable = false
		}
		printReport(outW, r)
		return nil
	default:
		return &ExitError{Code: 2, Message: "invalid format: must be 'text', 'json' or 'yaml'"}
	}
}

func printReport(w io.Writer, r *coreml.Report) {
	heading := func(s string) {
		fmt.Fprintf(w, "\n%s\n", color.Bold.Sprint(s))
	}

	fmt.Fprintf(w, "%s %s\n", color.Bold.Sprint("Package"), r.Path)
	fmt.Fprintf(w, "  specification version %d, opset %s\n", r.SpecificationVersion, r.Opset)

	heading("Items")
	for _, it := range r.Items {
		fmt.Fprintf(w, "  %-16s %s  %s\n", color.Cyan.Sprint(it.Name), it.Path, it.Description)
	}

	heading("Inputs")
	for _, f := range r.Inputs {
		fmt.Fprintf(w, "  %-20s %v\n", color.Cyan.Sprint(f.Name), f.Shape)
	}
	heading("Outputs")
	for _, f := range r.Outputs {
		fmt.Fprintf(w, "  %-20s %v\n", color.Cyan.Sprint(f.Name), f.Shape)
	}

	if len(r.Metadata) > 0 {
		heading("Metadata")
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, r.Metadata[k])
		}
	}

	heading(fmt.Sprintf("Operations (%d)", r.Operations))
	for _, c := range r.OpCounts {
		fmt.Fprintf(w, "  %-12s %s\n", c.Type, color.Yellow.Sprint(c.Count))
	}
	fmt.Fprintf(w, "\n%d weight arrays, %d blob bytes\n", r.BlobRefs, r.BlobBytes)
}
