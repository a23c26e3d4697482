package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/born-ml/katacoreml/internal/ctxlog"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
)

// ErrInvalidConfig wraps every parse, decode and semantic error of a build file.
var ErrInvalidConfig = errors.New("invalid build configuration")

// Defaults applied when a build file leaves a setting out.
const (
	DefaultBatch  = 1
	DefaultBoard  = 19
	DefaultAuthor = "github.com/born-ml/katacoreml"
)

// Build holds the lowering target.
type Build struct {
	Geometry             features.Geometry
	SpecificationVersion int    // 0 selects the default
	Weights              string // optional SafeTensors file; zeros when empty
}

// Package holds the output package settings.
type Package struct {
	Output        string
	Author        string
	Description   string
	License       string
	VersionString string
	Overwrite     bool
}

// Config is a decoded build file.
type Config struct {
	Model   desc.Architecture
	Build   Build
	Package Package
}

// Load reads and decodes the build file at path. vars are visible to
// expressions as var.<name>.
func Load(ctx context.Context, path string, vars map[string]string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading build file.", "path", path, "vars", VarNames(vars))

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, path, diags)
	}
	cfg, err := decode(file.Body, path, vars)
	if err != nil {
		return nil, err
	}

	logger.Debug("Build file loaded.", "model", cfg.Model.Name, "blocks", len(cfg.Model.Blocks), "output", cfg.Package.Output)
	return cfg, nil
}

// Parse decodes a build file held in memory. filename is used in diagnostics.
func Parse(src []byte, filename string, vars map[string]string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, filename, diags)
	}
	return decode(file.Body, filename, vars)
}

// ParseVars splits "name=value" pairs as given on the command line.
func ParseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: variable %q is not of the form name=value", ErrInvalidConfig, p)
		}
		vars[name] = value
	}
	return vars, nil
}

func evalContext(vars map[string]string) *hcl.EvalContext {
	values := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		values[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(values)},
	}
}

func decode(body hcl.Body, filename string, vars map[string]string) (*Config, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, evalContext(vars), &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidConfig, filename, diags)
	}
	if len(root.Models) != 1 {
		return nil, fmt.Errorf("%w: %s: expected exactly one model block, found %d", ErrInvalidConfig, filename, len(root.Models))
	}
	if len(root.Packages) > 1 {
		return nil, fmt.Errorf("%w: %s: at most one package block allowed, found %d", ErrInvalidConfig, filename, len(root.Packages))
	}

	arch, err := translateModel(root.Models[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: model %q: %w", ErrInvalidConfig, filename, root.Models[0].Name, err)
	}
	b, err := translateBuild(root.Build)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: build: %w", ErrInvalidConfig, filename, err)
	}

	var pb *pkgBlock
	if len(root.Packages) == 1 {
		pb = root.Packages[0]
	}
	return &Config{
		Model:   arch,
		Build:   b,
		Package: translatePackage(pb, arch.Name),
	}, nil
}

func translateModel(m *modelBlock) (desc.Architecture, error) {
	a := desc.Architecture{
		Name:               m.Name,
		SHA256:             m.SHA256,
		ModelVersion:       m.Version,
		MetaEncoderVersion: m.MetaEncoderVersion,
		TrunkChannels:      m.TrunkChannels,
		MidChannels:        m.MidChannels,
		RegularChannels:    m.RegularChannels,
		GPoolChannels:      m.GPoolChannels,
		MetaHiddenChannels: m.MetaHiddenChannels,
		P1Channels:         m.P1Channels,
		G1Channels:         m.G1Channels,
		PassChannels:       m.PassChannels,
		V1Channels:         m.V1Channels,
		V2Channels:         m.V2Channels,
		InitialConvSize:    m.InitialConvSize,
		BlockConvSize:      m.BlockConvSize,
		Activation:         desc.ReLU,
	}
	if m.Activation != "" {
		act, err := desc.ParseActivation(m.Activation)
		if err != nil {
			return a, err
		}
		a.Activation = act
	}
	if m.Epsilon != nil {
		if *m.Epsilon <= 0 {
			return a, fmt.Errorf("epsilon must be positive, got %g", *m.Epsilon)
		}
		a.Epsilon = float32(*m.Epsilon)
	}

	if len(m.Blocks) == 0 {
		return a, errors.New("no blocks")
	}
	blocks, err := translateBlocks(m.Blocks)
	if err != nil {
		return a, err
	}
	a.Blocks = blocks

	if m.PostProcess != nil {
		post := desc.DefaultPostProcessParams()
		pp := m.PostProcess
		setFloat(&post.TDScoreMultiplier, pp.TDScoreMultiplier)
		setFloat(&post.ScoreMeanMultiplier, pp.ScoreMeanMultiplier)
		setFloat(&post.ScoreStdevMultiplier, pp.ScoreStdevMultiplier)
		setFloat(&post.LeadMultiplier, pp.LeadMultiplier)
		setFloat(&post.VarianceTimeMultiplier, pp.VarianceTimeMultiplier)
		setFloat(&post.ShorttermValueErrorMultiplier, pp.ShorttermValueErrorMultiplier)
		setFloat(&post.ShorttermScoreErrorMultiplier, pp.ShorttermScoreErrorMultiplier)
		a.PostProcess = &post
	}
	return a, nil
}

func translateBlocks(blocks []*blockBlock) ([]desc.BlockSpec, error) {
	specs := make([]desc.BlockSpec, 0, len(blocks))
	for i, b := range blocks {
		kind, err := desc.ParseBlockKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i+1, err)
		}
		spec := desc.BlockSpec{Kind: kind}
		switch {
		case kind == desc.KindNestedBottleneck && len(b.Blocks) == 0:
			return nil, fmt.Errorf("block %d: nested bottleneck block has no sub-blocks", i+1)
		case kind != desc.KindNestedBottleneck && len(b.Blocks) > 0:
			return nil, fmt.Errorf("block %d: only nested bottleneck blocks may contain blocks", i+1)
		case len(b.Blocks) > 0:
			inner, err := translateBlocks(b.Blocks)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", i+1, err)
			}
			spec.Blocks = inner
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func translateBuild(b *buildBlock) (Build, error) {
	out := Build{Geometry: features.Geometry{Batch: DefaultBatch, Width: DefaultBoard, Height: DefaultBoard}}
	if b == nil {
		return out, nil
	}
	if b.Batch != nil {
		out.Geometry.Batch = *b.Batch
	}
	if b.BoardX != nil {
		out.Geometry.Width = *b.BoardX
	}
	if b.BoardY != nil {
		out.Geometry.Height = *b.BoardY
	}
	if b.SpecificationVersion != nil {
		out.SpecificationVersion = *b.SpecificationVersion
	}
	if b.Weights != nil {
		out.Weights = *b.Weights
	}
	if err := out.Geometry.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func translatePackage(p *pkgBlock, modelName string) Package {
	out := Package{Author: DefaultAuthor}
	if p != nil {
		out = Package{
			Output:        p.Output,
			Author:        p.Author,
			Description:   p.Description,
			License:       p.License,
			VersionString: p.VersionString,
			Overwrite:     p.Overwrite,
		}
		if out.Author == "" {
			out.Author = DefaultAuthor
		}
	}
	if out.Output == "" {
		out.Output = modelName + ".mlpackage"
	}
	return out
}

// VarNames returns the sorted names of vars, for logging.
func VarNames(vars map[string]string) []string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
