package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the default locations of cv's files on this machine.
type Paths struct {
	ConfigFile string
	BaseDir    string
}

// DefaultPaths resolves Paths from the environment. In order of precedence:
//
//	config file: $CV_CONFIG_PATH, $XDG_CONFIG_HOME/cv.toml, ~/.config/cv.toml
//	base dir:    $CV_HOME, $XDG_DATA_HOME/cv, ~/.local/share/cv
func DefaultPaths() (Paths, error) {
	return resolvePaths(os.Getenv, os.UserHomeDir)
}

func resolvePaths(getenv func(string) string, home func() (string, error)) (Paths, error) {
	var p Paths
	var err error
	p.ConfigFile, err = firstOf(getenv("CV_CONFIG_PATH"), getenv("XDG_CONFIG_HOME"), "cv.toml", home, ".config")
	if err != nil {
		return Paths{}, err
	}
	p.BaseDir, err = firstOf(getenv("CV_HOME"), getenv("XDG_DATA_HOME"), "cv", home, ".local", "share")
	if err != nil {
		return Paths{}, err
	}
	return p, nil
}

// firstOf returns explicit if set, else name below xdg, else name below the home subdirectory.
func firstOf(explicit, xdg, name string, home func() (string, error), homeSub ...string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, name), nil
	}
	dir, err := home()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{dir}, homeSub...), name)...), nil
}
