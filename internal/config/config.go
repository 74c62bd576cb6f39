package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the optional per-project configuration file.
const ProjectFileName = "flux.yaml"

// Project is the parsed flux.yaml. All fields are optional; CLI flags win
// over file values.
type Project struct {
	// Lib overrides the bundled stdlib with an on-disk directory.
	Lib string `yaml:"lib"`

	// History is the REPL history file. Defaults to ~/.flux_history.
	History string `yaml:"history"`

	// Trace enables instruction tracing.
	Trace bool `yaml:"trace"`

	// Disasm dumps the compiled chunk before running.
	Disasm bool `yaml:"disasm"`
}

// LoadProject reads flux.yaml from dir. A missing file is not an error and
// yields the zero config.
func LoadProject(dir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProjectFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Project{}, nil
		}
		return nil, err
	}
	cfg := &Project{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HistoryPath resolves the REPL history file, falling back to the home
// directory default.
func (p *Project) HistoryPath() string {
	if p.History != "" {
		return p.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flux_history"
	}
	return filepath.Join(home, ".flux_history")
}
