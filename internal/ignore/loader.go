package ignore

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	// IgnoreFileName is the default name of the ignore file
	IgnoreFileName = ".pgcomposeignore"
)

// LoadIgnoreFile loads the .pgcomposeignore file from the current directory.
// Returns nil if the file doesn't exist (ignore functionality is optional)
func LoadIgnoreFile() (*Config, error) {
	return LoadIgnoreFileFromPath(IgnoreFileName)
}

// tomlConfig represents the TOML structure of the ignore file:
//
//	[tables]
//	patterns = ["temp_*", "!temp_keep"]
type tomlConfig struct {
	Tables            patternSection `toml:"tables"`
	Views             patternSection `toml:"views"`
	MaterializedViews patternSection `toml:"materialized_views"`
	Functions         patternSection `toml:"functions"`
	Procedures        patternSection `toml:"procedures"`
	Indexes           patternSection `toml:"indexes"`
}

type patternSection struct {
	Patterns []string `toml:"patterns"`
}

// LoadIgnoreFileFromPath loads an ignore file from the specified path.
// Returns nil if the file doesn't exist.
func LoadIgnoreFileFromPath(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var tc tomlConfig
	if _, err := toml.DecodeFile(filePath, &tc); err != nil {
		return nil, err
	}
	return tc.config(), nil
}

// Parse decodes ignore rules from TOML text.
func Parse(data string) (*Config, error) {
	var tc tomlConfig
	if _, err := toml.Decode(data, &tc); err != nil {
		return nil, err
	}
	return tc.config(), nil
}

func (tc tomlConfig) config() *Config {
	return &Config{
		Tables:            tc.Tables.Patterns,
		Views:             tc.Views.Patterns,
		MaterializedViews: tc.MaterializedViews.Patterns,
		Functions:         tc.Functions.Patterns,
		Procedures:        tc.Procedures.Patterns,
		Indexes:           tc.Indexes.Patterns,
	}
}
