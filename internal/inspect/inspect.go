// Package inspect summarizes an assembled model package.
package inspect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/katacoreml/internal/blob"
	"github.com/born-ml/katacoreml/internal/mil"
	"github.com/born-ml/katacoreml/internal/mlpackage"
)

// Feature is one model input or output.
type Feature struct {
	Name        string `json:"name" yaml:"name"`
	Shape       []int  `json:"shape" yaml:"shape"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// OpCount is the number of operations of one type.
type OpCount struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count" yaml:"count"`
}

// Report describes a package.
type Report struct {
	Path                 string               `json:"path" yaml:"path"`
	Items                []mlpackage.ItemInfo `json:"items" yaml:"items"`
	SpecificationVersion int                  `json:"specification_version" yaml:"specification_version"`
	Opset                string               `json:"opset" yaml:"opset"`
	Inputs               []Feature            `json:"inputs" yaml:"inputs"`
	Outputs              []Feature            `json:"outputs" yaml:"outputs"`
	Metadata             map[string]string    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Operations           int                  `json:"operations" yaml:"operations"`
	OpCounts             []OpCount            `json:"op_counts" yaml:"op_counts"`
	BlobRefs             int                  `json:"blob_refs" yaml:"blob_refs"`
	BlobBytes            int64                `json:"blob_bytes" yaml:"blob_bytes"`
}

// Package reads the manifest and root program of the package at path and
// checks every weight reference against the blob files it points into.
func Package(path string) (*Report, error) {
	m, err := mlpackage.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	root, _ := m.Root()

	//nolint:gosec // G304: package path comes from the caller
	data, err := os.ReadFile(mlpackage.ItemPath(path, root))
	if err != nil {
		return nil, fmt.Errorf("failed to read root model: %w", err)
	}
	model, err := mil.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode root model: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	r := &Report{
		Path:                 path,
		Items:                m.Items(),
		SpecificationVersion: model.SpecificationVersion,
		Opset:                model.Program.Main().Opset,
		Inputs:               features(model.Description.Inputs),
		Outputs:              features(model.Description.Outputs),
		Metadata:             model.Description.Metadata.UserDefined,
	}

	blk := model.Program.Main().Block()
	r.Operations = len(blk.Operations)
	counts := model.OpCounts()
	for typ, n := range counts {
		r.OpCounts = append(r.OpCounts, OpCount{Type: typ, Count: n})
	}
	sort.Slice(r.OpCounts, func(i, j int) bool {
		if r.OpCounts[i].Count != r.OpCounts[j].Count {
			return r.OpCounts[i].Count > r.OpCounts[j].Count
		}
		return r.OpCounts[i].Type < r.OpCounts[j].Type
	})

	regions := make(map[string][]blob.Region)
	for _, op := range blk.Operations {
		val, ok := op.Attributes["val"]
		if !ok || val.Blob == nil {
			continue
		}
		regions[val.Blob.FileName] = append(regions[val.Blob.FileName], blob.Region{
			Name:   op.Name(),
			Offset: val.Blob.Offset,
			Size:   uint64(val.Type.NumElements()) * blob.FloatSize,
		})
		r.BlobRefs++
	}
	for ref, list := range regions {
		size, err := checkBlob(path, ref, list)
		if err != nil {
			return nil, err
		}
		r.BlobBytes += size
	}
	return r, nil
}

// blobPrefix is how weight references name the package's data directory.
const blobPrefix = "@model_path/"

func checkBlob(pkg, ref string, regions []blob.Region) (int64, error) {
	rel, ok := strings.CutPrefix(ref, blobPrefix)
	if !ok || rel == "" {
		return 0, fmt.Errorf("%w: unsupported blob reference %q", mil.ErrMalformed, ref)
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return 0, fmt.Errorf("%w: blob reference %q escapes the package", mil.ErrMalformed, ref)
	}
	path := filepath.Join(pkg, mlpackage.DataDir, mlpackage.ItemDir, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", blob.ErrStorage, ref, err)
	}
	if err := blob.ValidateRegions(regions, info.Size()); err != nil {
		return 0, fmt.Errorf("blob %s: %w", ref, err)
	}
	return info.Size(), nil
}

func features(list []mil.Feature) []Feature {
	out := make([]Feature, len(list))
	for i, f := range list {
		out[i] = Feature{Name: f.Name, Shape: f.Shape, Description: f.Description}
	}
	return out
}
