// ABOUTME: Named server profiles stored in a TOML file.
// ABOUTME: Lets one chatctl install talk to several deployments by name.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile is a named server target.
type Profile struct {
	BaseURL string `toml:"base_url"`
	PushURL string `toml:"push_url"`
}

// Profiles is the on-disk profile registry.
type Profiles struct {
	// Default names the profile used when --profile is not given.
	Default  string             `toml:"default"`
	Profiles map[string]Profile `toml:"profiles"`
}

// ProfilesPath returns the profile file location under the user's config dir.
func ProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chatctl-profiles.toml"
	}
	return filepath.Join(dir, "chatctl", "profiles.toml")
}

// LoadProfiles reads the profile registry. A missing file is not an error;
// it yields an empty registry.
func LoadProfiles(path string) (*Profiles, error) {
	var p Profiles
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return &Profiles{Profiles: map[string]Profile{}}, nil
		}
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}
	if p.Profiles == nil {
		p.Profiles = map[string]Profile{}
	}
	return &p, nil
}

// Resolve returns the named profile, or the default one for an empty name.
// An empty registry resolves to nothing and no error, so the main config
// keeps working without a profiles file.
func (p *Profiles) Resolve(name string) (*Profile, error) {
	if name == "" {
		name = p.Default
	}
	if name == "" {
		return nil, nil
	}

	profile, ok := p.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return &profile, nil
}
