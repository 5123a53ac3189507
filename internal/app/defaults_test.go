package app

import (
	"errors"
	"testing"
)

func TestResolvePaths(t *testing.T) {
	home := func() (string, error) { return "/home/u", nil }

	tests := []struct {
		name string
		env  map[string]string
		want Paths
	}{
		{
			name: "home defaults",
			want: Paths{ConfigFile: "/home/u/.config/cv.toml", BaseDir: "/home/u/.local/share/cv"},
		},
		{
			name: "xdg dirs",
			env:  map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			want: Paths{ConfigFile: "/xdg/config/cv.toml", BaseDir: "/xdg/data/cv"},
		},
		{
			name: "relative xdg dirs are ignored",
			env:  map[string]string{"XDG_CONFIG_HOME": "rel", "XDG_DATA_HOME": "rel"},
			want: Paths{ConfigFile: "/home/u/.config/cv.toml", BaseDir: "/home/u/.local/share/cv"},
		},
		{
			name: "cv variables win",
			env: map[string]string{
				"CV_CONFIG_PATH": "/custom/config.toml", "CV_HOME": "/custom/cv",
				"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data",
			},
			want: Paths{ConfigFile: "/custom/config.toml", BaseDir: "/custom/cv"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePaths(func(k string) string { return tt.env[k] }, home)
			if err != nil {
				t.Fatalf("resolvePaths() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolvePaths() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolvePaths_NoHome(t *testing.T) {
	noHome := func() (string, error) { return "", errors.New("no home") }

	if _, err := resolvePaths(func(string) string { return "" }, noHome); err == nil {
		t.Error("resolvePaths() expected error without a home directory, got nil")
	}

	env := map[string]string{"CV_CONFIG_PATH": "/c.toml", "CV_HOME": "/cv"}
	got, err := resolvePaths(func(k string) string { return env[k] }, noHome)
	if err != nil {
		t.Fatalf("resolvePaths() error = %v", err)
	}
	if got.ConfigFile != "/c.toml" || got.BaseDir != "/cv" {
		t.Errorf("resolvePaths() = %+v", got)
	}
}
