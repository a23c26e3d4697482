// Package build runs the full descriptor to package pipeline.
package build

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/born-ml/katacoreml/internal/blob"
	"github.com/born-ml/katacoreml/internal/config"
	"github.com/born-ml/katacoreml/internal/ctxlog"
	"github.com/born-ml/katacoreml/internal/desc"
	"github.com/born-ml/katacoreml/internal/features"
	"github.com/born-ml/katacoreml/internal/lower"
	"github.com/born-ml/katacoreml/internal/mil"
	"github.com/born-ml/katacoreml/internal/mlpackage"
	"github.com/born-ml/katacoreml/internal/tempdir"
	"github.com/born-ml/katacoreml/internal/weights"
)

// Package item names and provenance.
const (
	RootItemName       = "model.mlmodel"
	WeightsItemName    = "weights"
	BlobFileName       = "weight.bin"
	RootDescription    = "KataGo Core ML Model Specification"
	WeightsDescription = "KataGo Core ML Model Weights"
)

// User-defined metadata keys written into the model description.
const (
	MetaModelName          = "katacoreml.model_name"
	MetaModelVersion       = "katacoreml.model_version"
	MetaMetaEncoderVersion = "katacoreml.meta_encoder_version"
	MetaModelSHA256        = "katacoreml.model_sha256"
	MetaBoard              = "katacoreml.board"
	MetaWeightsSHA256      = "katacoreml.weights_sha256"

	MetaTDScoreMultiplier             = "katacoreml.td_score_multiplier"
	MetaScoreMeanMultiplier           = "katacoreml.score_mean_multiplier"
	MetaScoreStdevMultiplier          = "katacoreml.score_stdev_multiplier"
	MetaLeadMultiplier                = "katacoreml.lead_multiplier"
	MetaVarianceTimeMultiplier        = "katacoreml.variance_time_multiplier"
	MetaShorttermValueErrorMultiplier = "katacoreml.shortterm_value_error_multiplier"
	MetaShorttermScoreErrorMultiplier = "katacoreml.shortterm_score_error_multiplier"
)

// Options describes one build.
type Options struct {
	Model                *desc.Model
	Geometry             features.Geometry
	SpecificationVersion int // 0 selects the default
	Output               string
	Overwrite            bool
	Author               string
	Metadata             mil.Metadata
	TempBase             string // staging parent; os.TempDir() when empty
}

// Result summarizes a finished build.
type Result struct {
	Output          string
	Opset           string
	Operations      int
	OpCounts        map[string]int
	BlobArrays      int
	BlobBytes       uint64
	WeightsChecksum string
}

// FromConfig builds the descriptor named by a build file. Weights come from
// the configured SafeTensors file, or are zero when none is set.
func FromConfig(ctx context.Context, cfg *config.Config) (Options, error) {
	logger := ctxlog.FromContext(ctx)

	var src weights.Source = weights.Zeros{}
	if cfg.Build.Weights != "" {
		st, err := weights.OpenSafeTensors(cfg.Build.Weights)
		if err != nil {
			return Options{}, err
		}
		defer func() {
			_ = st.Close() // Best effort close; arrays are copied out
		}()
		logger.Info("Loading weights.", "path", cfg.Build.Weights, "tensors", st.Len())
		src = st
	} else {
		logger.Warn("No weights file configured; emitting zero weights.")
	}

	model, err := desc.FromArchitecture(cfg.Model, src)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Model:                model,
		Geometry:             cfg.Build.Geometry,
		SpecificationVersion: cfg.Build.SpecificationVersion,
		Output:               cfg.Package.Output,
		Overwrite:            cfg.Package.Overwrite,
		Author:               cfg.Package.Author,
		Metadata: mil.Metadata{
			ShortDescription: cfg.Package.Description,
			VersionString:    cfg.Package.VersionString,
			Author:           cfg.Package.Author,
			License:          cfg.Package.License,
		},
	}, nil
}

// Run lowers opts.Model, writes the program and weights into a staging
// directory and assembles the package at opts.Output. Either a complete
// package is produced or opts.Output is left as it was.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("output", opts.Output)
	if opts.Output == "" {
		return nil, fmt.Errorf("%w: empty output path", mlpackage.ErrInvalidItem)
	}

	cfg, err := lower.NewConfig(opts.Model, opts.Geometry, opts.SpecificationVersion)
	if err != nil {
		return nil, err
	}
	cfg.Metadata = metadata(opts)
	logger.Debug("Lowering configured.",
		"model", opts.Model.Name,
		"model_version", opts.Model.ModelVersion,
		"blocks", opts.Model.NumBlocks(),
		"opset", cfg.Opset)

	var tmpOpts []tempdir.Option
	if opts.TempBase != "" {
		tmpOpts = append(tmpOpts, tempdir.WithBase(opts.TempBase))
	}

	var res *Result
	err = tempdir.With("katacoreml", func(dir *tempdir.Dir) error {
		logger.Debug("Staging build.", "dir", dir.Path())
		var err error
		res, err = stage(ctx, dir, cfg, opts)
		return err
	}, tmpOpts...)
	if err != nil {
		logger.Error("Build failed.", "error", err)
		return nil, err
	}

	logger.Info("Package written.",
		"ops", res.Operations,
		"blob_arrays", res.BlobArrays,
		"blob_bytes", res.BlobBytes)
	return res, nil
}

func stage(ctx context.Context, dir *tempdir.Dir, cfg lower.Config, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	weightsDir := dir.Join(WeightsItemName)
	if err := os.Mkdir(weightsDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create weights directory: %w", blob.ErrStorage, err)
	}
	w, err := blob.Create(dir.Join(WeightsItemName, BlobFileName))
	if err != nil {
		return nil, err
	}

	model, err := lower.Lower(cfg, w)
	closeErr := w.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum, err := blob.Checksum(w.Path())
	if err != nil {
		return nil, err
	}
	model.Description.Metadata.UserDefined[MetaWeightsSHA256] = sum
	logger.Debug("Program lowered.", "ops", len(model.Program.Main().Block().Operations), "blob_bytes", w.Size())

	data, err := mil.Marshal(model)
	if err != nil {
		return nil, err
	}
	programPath, err := writeProgram(dir, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	author := opts.Author
	if author == "" {
		author = config.DefaultAuthor
	}
	root := mlpackage.Item{Name: RootItemName, Source: programPath, Author: author, Description: RootDescription}
	items := []mlpackage.Item{{Name: WeightsItemName, Source: weightsDir, Author: author, Description: WeightsDescription}}
	if err := mlpackage.Assemble(opts.Output, root, items, mlpackage.Options{Overwrite: opts.Overwrite}); err != nil {
		return nil, err
	}

	counts := model.OpCounts()
	return &Result{
		Output:          opts.Output,
		Opset:           cfg.Opset,
		Operations:      len(model.Program.Main().Block().Operations),
		OpCounts:        counts,
		BlobArrays:      w.Count(),
		BlobBytes:       w.Size(),
		WeightsChecksum: sum,
	}, nil
}

func writeProgram(dir *tempdir.Dir, data []byte) (string, error) {
	f, err := dir.CreateFile("model")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close() // Best effort close on error
		return "", fmt.Errorf("%w: failed to write program file: %w", blob.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to close program file: %w", blob.ErrStorage, err)
	}
	return f.Name(), nil
}

func metadata(opts Options) mil.Metadata {
	md := opts.Metadata
	user := make(map[string]string, len(md.UserDefined)+13)
	for k, v := range md.UserDefined {
		user[k] = v
	}
	m := opts.Model
	if m != nil {
		user[MetaModelName] = m.Name
		user[MetaModelVersion] = strconv.Itoa(m.ModelVersion)
		user[MetaMetaEncoderVersion] = strconv.Itoa(m.MetaEncoderVersion)
		if m.SHA256 != "" {
			user[MetaModelSHA256] = m.SHA256
		}
		for key, v := range map[string]float64{
			MetaTDScoreMultiplier:             m.PostProcess.TDScoreMultiplier,
			MetaScoreMeanMultiplier:           m.PostProcess.ScoreMeanMultiplier,
			MetaScoreStdevMultiplier:          m.PostProcess.ScoreStdevMultiplier,
			MetaLeadMultiplier:                m.PostProcess.LeadMultiplier,
			MetaVarianceTimeMultiplier:        m.PostProcess.VarianceTimeMultiplier,
			MetaShorttermValueErrorMultiplier: m.PostProcess.ShorttermValueErrorMultiplier,
			MetaShorttermScoreErrorMultiplier: m.PostProcess.ShorttermScoreErrorMultiplier,
		} {
			user[key] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	user[MetaBoard] = fmt.Sprintf("%dx%d", opts.Geometry.Width, opts.Geometry.Height)
	md.UserDefined = user
	if md.Author == "" {
		md.Author = opts.Author
	}
	return md
}
