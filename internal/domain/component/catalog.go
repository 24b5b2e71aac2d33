package component

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

//go:embed components.yaml
var defaultManifest []byte

// Manifest is the on-disk catalog format.
type Manifest struct {
	Components []Component `yaml:"components" toml:"components" json:"components"`
}

// Catalog is the immutable set of known components and the layout of their
// artifacts and staged trees under the downloads directory.
type Catalog struct {
	downloadsDir string
	components   []Component
	index        map[string]int
}

// LoadCatalog reads the manifest at manifestPath, or the built-in catalog
// when manifestPath is empty. The format follows the file extension.
func LoadCatalog(downloadsDir, manifestPath string) (*Catalog, error) {
	if manifestPath == "" {
		components, err := ParseManifest(defaultManifest, "yaml")
		if err != nil {
			return nil, fmt.Errorf("built-in manifest: %w", err)
		}
		return NewCatalog(downloadsDir, components)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	components, err := ParseManifest(data, strings.TrimPrefix(filepath.Ext(manifestPath), "."))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}
	return NewCatalog(downloadsDir, components)
}

// ParseManifest decodes a manifest in the given format ("yaml", "yml",
// "toml" or "json").
func ParseManifest(data []byte, format string) ([]Component, error) {
	var m Manifest
	var err error

	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &m)
	case "toml":
		err = toml.Unmarshal(data, &m)
	case "json":
		err = sonic.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return m.Components, nil
}

// NewCatalog validates components and indexes them by identifier.
func NewCatalog(downloadsDir string, components []Component) (*Catalog, error) {
	c := &Catalog{
		downloadsDir: downloadsDir,
		components:   make([]Component, 0, len(components)),
		index:        make(map[string]int, len(components)),
	}

	for _, comp := range components {
		if err := validate(comp); err != nil {
			return nil, err
		}
		if _, dup := c.index[comp.ID]; dup {
			return nil, fmt.Errorf("duplicate component id %q", comp.ID)
		}
		if comp.Name == "" {
			comp.Name = comp.ID
		}
		c.index[comp.ID] = len(c.components)
		c.components = append(c.components, comp)
	}
	return c, nil
}

func validate(comp Component) error {
	if comp.ID == "" {
		return errors.New("component id is required")
	}
	if strings.ContainsAny(comp.ID, `/\`) || comp.ID == "." || comp.ID == ".." {
		return fmt.Errorf("component id %q must be a single path element", comp.ID)
	}
	u, err := url.Parse(comp.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("component %s: invalid url %q", comp.ID, comp.URL)
	}
	if name := path.Base(u.Path); name == "/" || name == "." {
		return fmt.Errorf("component %s: url %q has no file name", comp.ID, comp.URL)
	}
	if comp.Entrypoint != "" && !doublestar.ValidatePattern(comp.Entrypoint) {
		return fmt.Errorf("component %s: invalid entrypoint pattern %q", comp.ID, comp.Entrypoint)
	}
	return nil
}

// DownloadsDir returns the root of artifacts and staged trees.
func (c *Catalog) DownloadsDir() string {
	return c.downloadsDir
}

// Len returns the number of components.
func (c *Catalog) Len() int {
	return len(c.components)
}

// Get returns the component with the given identifier.
func (c *Catalog) Get(id string) (Component, bool) {
	i, ok := c.index[id]
	if !ok {
		return Component{}, false
	}
	return c.components[i], true
}

// Components returns all components in manifest order.
func (c *Catalog) Components() []Component {
	out := make([]Component, len(c.components))
	copy(out, c.components)
	return out
}

// List returns the client-facing descriptors in manifest order.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, 0, len(c.components))
	for _, comp := range c.components {
		out = append(out, comp.Descriptor())
	}
	return out
}

// ArtifactPath is where the downloaded artifact for comp is kept.
func (c *Catalog) ArtifactPath(comp Component) string {
	u, err := url.Parse(comp.URL)
	if err != nil {
		return filepath.Join(c.downloadsDir, comp.ID)
	}
	return filepath.Join(c.downloadsDir, path.Base(u.Path))
}

// StagePath is the directory comp is staged into.
func (c *Catalog) StagePath(comp Component) string {
	switch {
	case comp.StagePath == "":
		return filepath.Join(c.downloadsDir, comp.ID)
	case filepath.IsAbs(comp.StagePath):
		return comp.StagePath
	default:
		return filepath.Join(c.downloadsDir, comp.StagePath)
	}
}

// Locate resolves the staged path of a component. When the component
// declares an entrypoint pattern the first match inside the staged tree is
// returned.
func (c *Catalog) Locate(id string) (string, error) {
	comp, ok := c.Get(id)
	if !ok {
		return "", apperr.NotFound("locate", id)
	}

	root := c.StagePath(comp)
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", apperr.Newf(apperr.KindNotFound, "locate", id, "component is not staged: %w", apperr.ErrNotFound)
	}
	if comp.Entrypoint == "" {
		return root, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), comp.Entrypoint, doublestar.WithFilesOnly())
	if err != nil {
		return "", apperr.New(apperr.KindInvalid, "locate", id, err)
	}
	if len(matches) == 0 {
		return "", apperr.Newf(apperr.KindNotFound, "locate", id,
			"no staged file matches %q: %w", comp.Entrypoint, fs.ErrNotExist)
	}
	sort.Strings(matches)
	return filepath.Join(root, filepath.FromSlash(matches[0])), nil
}
