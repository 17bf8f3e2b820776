package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file the resolver looks for in ancestor directories.
const ManifestName = ".serverkit.yaml"

// manifestFile mirrors the subset of a project manifest serverkit cares
// about: a single nested section keyed by camelCase option names.
type manifestFile struct {
	Serverkit map[string]string `yaml:"serverkit"`
}

// findManifest walks upward from startDir, reading ManifestName in each
// directory, and stops at the first one whose "serverkit" section is
// non-empty. It returns the section translated back to Key, plus the
// directory the winning manifest lives in (needed to make DownloadDir
// and SystemBinary paths absolute).
func findManifest(startDir string) (map[Key]string, string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", err
	}

	snakeByCamel := make(map[string]Key, len(camelCase))
	for k, camel := range camelCase {
		snakeByCamel[camel] = k
	}

	for {
		candidate := filepath.Join(dir, ManifestName)
		data, err := os.ReadFile(candidate)
		if err == nil {
			var mf manifestFile
			if err := yaml.Unmarshal(data, &mf); err != nil {
				return nil, "", err
			}
			if len(mf.Serverkit) > 0 {
				values := make(map[Key]string, len(mf.Serverkit))
				for camel, v := range mf.Serverkit {
					if key, ok := snakeByCamel[camel]; ok {
						values[key] = v
					}
				}
				return values, dir, nil
			}
		} else if !os.IsNotExist(err) {
			return nil, "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return nil, "", nil
}
