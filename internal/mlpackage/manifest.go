package mlpackage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Package layout constants.
const (
	ManifestName      = "Manifest.json"
	DataDir           = "Data"
	ItemDir           = "com.apple.CoreML"
	FileFormatVersion = "1.0.0"
)

// ItemInfo is one manifest entry.
type ItemInfo struct {
	Author      string `json:"author"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Path        string `json:"path"`
}

// Manifest is the package's Manifest.json.
type Manifest struct {
	FileFormatVersion   string              `json:"fileFormatVersion"`
	ItemInfoEntries     map[string]ItemInfo `json:"itemInfoEntries"`
	RootModelIdentifier string              `json:"rootModelIdentifier"`
}

func newIdentifier() string {
	return strings.ToUpper(uuid.NewString())
}

// itemPath is the manifest path of an item, relative to the Data directory.
func itemPath(name string) string {
	return ItemDir + "/" + name
}

func newManifest(root Item, items []Item) *Manifest {
	m := &Manifest{
		FileFormatVersion: FileFormatVersion,
		ItemInfoEntries:   make(map[string]ItemInfo, len(items)+1),
	}
	m.RootModelIdentifier = m.add(root)
	for _, it := range items {
		m.add(it)
	}
	return m
}

func (m *Manifest) add(it Item) string {
	id := newIdentifier()
	for {
		if _, taken := m.ItemInfoEntries[id]; !taken {
			break
		}
		id = newIdentifier()
	}
	m.ItemInfoEntries[id] = ItemInfo{
		Author:      it.Author,
		Description: it.Description,
		Name:        it.Name,
		Path:        itemPath(it.Name),
	}
	return id
}

// Root returns the root model entry.
func (m *Manifest) Root() (ItemInfo, bool) {
	info, ok := m.ItemInfoEntries[m.RootModelIdentifier]
	return info, ok
}

// Items returns all entries, root first, then by name.
func (m *Manifest) Items() []ItemInfo {
	items := make([]ItemInfo, 0, len(m.ItemInfoEntries))
	for id, info := range m.ItemInfoEntries {
		if id != m.RootModelIdentifier {
			items = append(items, info)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	if root, ok := m.Root(); ok {
		items = append([]ItemInfo{root}, items...)
	}
	return items
}

func (m *Manifest) write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest of the package at dir.
func ReadManifest(dir string) (*Manifest, error) {
	//nolint:gosec // G304: package path comes from the caller
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if _, ok := m.Root(); !ok {
		return nil, fmt.Errorf("%w: manifest root %q has no entry", ErrInvalidPackage, m.RootModelIdentifier)
	}
	for id, info := range m.ItemInfoEntries {
		if !filepath.IsLocal(filepath.FromSlash(info.Path)) {
			return nil, fmt.Errorf("%w: item %s path %q escapes the package", ErrInvalidPackage, id, info.Path)
		}
	}
	return &m, nil
}

// ItemPath returns the filesystem path of a manifest entry inside the
// package at dir.
func ItemPath(dir string, info ItemInfo) string {
	return filepath.Join(dir, DataDir, filepath.FromSlash(info.Path))
}
