package contractintake

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ymiyake/contractintake/auth"
	"github.com/ymiyake/contractintake/llm"
)

// Config holds all configuration for the intake assistant.
type Config struct {
	// LLM configures the completion service. An empty provider (or a gemini
	// provider without a key) disables the service; extraction then runs on
	// the pattern-matching fallback with an explanatory note.
	LLM llm.Config `json:"llm" yaml:"llm"`

	// MaxRounds caps the follow-up question rounds per session.
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// MaxQuestions caps the follow-up questions per round.
	MaxQuestions int `json:"max_questions" yaml:"max_questions"`

	// OutputDir receives exported files and audit logs.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// CSVMappingPath points at the CSV column mapping YAML.
	CSVMappingPath string `json:"csv_mapping_path" yaml:"csv_mapping_path"`

	// ExcelMappingPath and ExcelTemplatePath configure the Excel export.
	// Both empty disables it.
	ExcelMappingPath  string `json:"excel_mapping_path" yaml:"excel_mapping_path"`
	ExcelTemplatePath string `json:"excel_template_path" yaml:"excel_template_path"`

	// HistoryDB is the SQLite file for the submission history.
	HistoryDB string `json:"history_db" yaml:"history_db"`

	// WatchDir, when set, is polled by the server for dropped meeting-note
	// files which open fresh sessions automatically.
	WatchDir string `json:"watch_dir" yaml:"watch_dir"`

	// Auth holds resolved basic-auth credentials. Zero value disables auth.
	Auth auth.Config `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with local-friendly defaults. The service
// provider is gemini; without a key the fallback path still works.
func DefaultConfig() Config {
	return Config{
		LLM: llm.Config{
			Provider: "gemini",
			Model:    "gemini-2.5-pro",
		},
		MaxRounds:      2,
		MaxQuestions:   5,
		OutputDir:      "outputs",
		CSVMappingPath: "mappings/csv_mapping.yaml",
		HistoryDB:      "history.db",
	}
}

// Secrets carries the sensitive values kept out of the main config file.
type Secrets struct {
	GeminiAPIKey          string `yaml:"gemini_api_key"`
	BasicAuthUsername     string `yaml:"basic_auth_username"`
	BasicAuthPassword     string `yaml:"basic_auth_password"`
	BasicAuthPasswordHash string `yaml:"basic_auth_password_hash"`
}

// LoadSecrets reads the YAML secrets file and overlays environment
// variables. A missing file is not an error when GEMINI_API_KEY is set in
// the environment; path == "" skips the file entirely.
func LoadSecrets(path string) (Secrets, error) {
	var s Secrets
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if uerr := yaml.Unmarshal(data, &s); uerr != nil {
				return Secrets{}, fmt.Errorf("%w: parsing secrets %s: %v", ErrInvalidConfig, path, uerr)
			}
		case os.IsNotExist(err):
			// Fall through to the environment.
		default:
			return Secrets{}, fmt.Errorf("reading secrets %s: %w", path, err)
		}
	}

	if s.GeminiAPIKey == "" {
		s.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	return s, nil
}

// Apply folds secrets into the configuration: the service credential and
// the resolved basic-auth config.
func (c *Config) Apply(s Secrets) error {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = s.GeminiAPIKey
	}

	authCfg, err := auth.Resolve(s.BasicAuthUsername, s.BasicAuthPassword, s.BasicAuthPasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Auth = authCfg
	return nil
}

// LoadConfig reads a YAML config file over DefaultConfig. path == "" returns
// the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}
