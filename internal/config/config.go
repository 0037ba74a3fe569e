package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models docketline.yml. It is loaded once at startup and
// treated as immutable afterward.
type Config struct {
	Sheet struct {
		ID                  string `yaml:"id"`
		PendingCasesRange   string `yaml:"pending_cases_range"`
		CaseLogRangeCrim    string `yaml:"case_log_range_criminal"`
		CaseLogRangeCivil   string `yaml:"case_log_range_civil"`
		CounterCellCriminal string `yaml:"counter_cell_criminal"`
		CounterCellCivil    string `yaml:"counter_cell_civil"`
		JudgeRosterRange    string `yaml:"judge_roster_range"`
		CredentialsFile     string `yaml:"credentials_file"`
	} `yaml:"sheet"`

	Channels struct {
		Submission     string `yaml:"submission"`
		InternalReview string `yaml:"internal_review"`
	} `yaml:"channels"`

	// Reviewers is the set of actor ids allowed through the role gate.
	// An empty set disables the gate so a fresh deployment cannot lock
	// itself out.
	Reviewers []string `yaml:"reviewers"`

	Judges struct {
		// Source selects pool sourcing: "static" uses Pool below,
		// "roster" reads the store's judge roster.
		Source                 string   `yaml:"source"`
		Pool                   []string `yaml:"pool"`
		RefreshIntervalSeconds int      `yaml:"refresh_interval_seconds"`
		// Names maps judge chat ids to display names written to the
		// docket on assignment accept.
		Names map[string]string `yaml:"names"`
	} `yaml:"judges"`

	// Gateway is the chat bridge: it posts inbound interaction events
	// to this process and receives outbound messages at its URL.
	Gateway struct {
		URL            string `yaml:"url"`
		Secret         string `yaml:"secret"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`

	Classifier struct {
		Endpoint      string `yaml:"endpoint"`
		Model         string `yaml:"model"`
		TestingResult bool   `yaml:"testing_result"`
	} `yaml:"classifier"`

	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`

	Workers   int    `yaml:"workers"`
	Workspace string `yaml:"workspace"`
}

// Load reads and validates config from a workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with docketline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate refuses startup when a required destination is missing: the
// process must not run with undefined store or channel identifiers.
func (c *Config) Validate() error {
	if c.Sheet.ID == "" {
		return fmt.Errorf("config.sheet.id is required")
	}
	if c.Sheet.PendingCasesRange == "" {
		return fmt.Errorf("config.sheet.pending_cases_range is required")
	}
	if c.Channels.Submission == "" {
		return fmt.Errorf("config.channels.submission is required")
	}
	if c.Channels.InternalReview == "" {
		return fmt.Errorf("config.channels.internal_review is required")
	}
	switch c.Judges.Source {
	case "", "static", "roster":
	default:
		return fmt.Errorf("config.judges.source must be static or roster, got %q", c.Judges.Source)
	}
	if c.Judges.Source == "roster" && c.Sheet.JudgeRosterRange == "" {
		return fmt.Errorf("config.sheet.judge_roster_range is required with judges.source=roster")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config.workers must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Judges.Source == "" {
		c.Judges.Source = "static"
	}
	if c.Judges.RefreshIntervalSeconds == 0 {
		c.Judges.RefreshIntervalSeconds = 300
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8470"
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
}

// JudgeName resolves a judge chat id to its configured display name,
// falling back to the id itself.
func (c *Config) JudgeName(id string) string {
	if n, ok := c.Judges.Names[id]; ok && n != "" {
		return n
	}
	return id
}

// IsReviewer reports whether the actor passes the role gate. An empty
// reviewer set allows everyone.
func (c *Config) IsReviewer(actorID string) bool {
	if len(c.Reviewers) == 0 {
		return true
	}
	for _, id := range c.Reviewers {
		if id == actorID {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "docketline.yml")
}

// GenerateDefault returns default config YAML for a new deployment.
func GenerateDefault(sheetID string) string {
	return fmt.Sprintf(defaultTemplate, sheetID)
}

const defaultTemplate = `sheet:
  id: %s
  pending_cases_range: "Pending Cases!A2:F2"
  case_log_range_criminal: "Case Log!J5:O5"
  case_log_range_civil: "Case Log!B5:G5"
  counter_cell_criminal: "Data!O3"
  counter_cell_civil: "Data!O4"
  judge_roster_range: "Data!A3:K"
  credentials_file: ./service_account.json

channels:
  submission: "submission-channel-id"
  internal_review: "internal-review-channel-id"

reviewers: []

judges:
  source: static
  pool: []
  refresh_interval_seconds: 300
  names: {}

gateway:
  url: "http://127.0.0.1:8471"
  secret: ""
  timeout_seconds: 5

classifier:
  endpoint: ""
  model: ""
  testing_result: false

server:
  addr: ":8470"
  jwt_secret: ""

workers: 8
`
