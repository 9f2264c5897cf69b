package adapters

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/hashgraph-online/flora-price-oracle/shared/canonical"
)

// ManifestEntry describes one adapter. The registry publishes the same
// entries, so petals and the flora agree on fingerprints by hashing the
// identical canonical entry.
type ManifestEntry struct {
	ID     string  `yaml:"id" json:"id"`
	Kind   string  `yaml:"kind,omitempty" json:"kind,omitempty"`
	URL    string  `yaml:"url,omitempty" json:"url,omitempty"`
	Path   string  `yaml:"path,omitempty" json:"path,omitempty"`
	Source string  `yaml:"source,omitempty" json:"source,omitempty"`
	Entity string  `yaml:"entity,omitempty" json:"entity,omitempty"`
	Price  float64 `yaml:"price,omitempty" json:"price,omitempty"`
}

// ComputeFingerprint hashes the canonical form of the entry.
func (e ManifestEntry) ComputeFingerprint() (string, error) {
	fp, err := canonical.Digest(e)
	if err != nil {
		return "", errors.Wrapf(err, "could not fingerprint adapter %s", e.ID)
	}
	return fp, nil
}

// Manifest is the adapter manifest file layout.
type Manifest struct {
	Adapters []ManifestEntry `yaml:"adapters"`
}

// LoadManifest reads and validates an adapter manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read adapter manifest")
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "could not parse adapter manifest")
	}
	if len(m.Adapters) == 0 {
		return nil, errors.New("adapter manifest lists no adapters")
	}
	seen := make(map[string]bool, len(m.Adapters))
	for _, entry := range m.Adapters {
		if entry.ID == "" {
			return nil, errors.New("adapter manifest entry is missing an id")
		}
		if seen[entry.ID] {
			return nil, errors.Errorf("adapter id %s appears twice in manifest", entry.ID)
		}
		seen[entry.ID] = true
		switch entry.Kind {
		case "", "http":
			if entry.URL == "" {
				return nil, errors.Errorf("adapter %s has no url", entry.ID)
			}
		case "static":
			if entry.Price == 0 {
				return nil, errors.Errorf("static adapter %s has no price", entry.ID)
			}
		default:
			return nil, errors.Errorf("adapter %s has unknown kind %q", entry.ID, entry.Kind)
		}
	}
	return m, nil
}

// New constructs the adapter set a manifest describes, in manifest order.
func New(m *Manifest) ([]Adapter, error) {
	list := make([]Adapter, 0, len(m.Adapters))
	for _, entry := range m.Adapters {
		var (
			a   Adapter
			err error
		)
		switch entry.Kind {
		case "static":
			a, err = newStaticAdapter(entry)
		default:
			a, err = newHTTPAdapter(entry)
		}
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, nil
}
