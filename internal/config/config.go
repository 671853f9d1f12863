// Package config loads mercury's single YAML configuration file into a
// typed Config, per SPEC_FULL.md 2.2. Every sub-struct mirrors one
// component's own constructor arguments; nothing in this package parses
// or validates beyond what yaml.Unmarshal does for free — a component
// rejects a bad value itself (e.g. ring.New panics on a non-power-of-two
// depth) rather than config.go duplicating that check.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkersConfig sizes the worker pool, the per-worker output ring
// (internal/ring, per spec.md 4.I's LLQ_DEPTH terminology), and the
// per-worker inbound NATS channel (internal/transport.Subscriber).
type WorkersConfig struct {
	NumWorkers        int    `yaml:"num_workers"`
	RingDepth         int    `yaml:"ring_depth"`
	RingBackpressure  string `yaml:"ring_backpressure"` // "blocking" | "nonblocking"
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// ClickHouseConfig names the connection mercury's optional analysis sink
// (internal/sink/clickhouse) dials, same shape as the teacher's
// connect() helper expects.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OutputConfig configures the k-way merge writer (internal/merge).
type OutputConfig struct {
	Path           string           `yaml:"path"`
	RotateInterval string           `yaml:"rotate_interval"`
	RotateMaxBytes int64            `yaml:"rotate_max_bytes"`
	LLQMaxAge      string           `yaml:"llq_max_age"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

// ClassifierConfig points at the resource archive the naive-Bayes
// classifier (internal/classifier) loads at startup.
type ClassifierConfig struct {
	ArchivePath      string     `yaml:"archive_path"`
	Enabled          bool       `yaml:"enabled"`
	ProcDstThreshold float64    `yaml:"proc_dst_threshold"`
	FeatureWeights   [6]float64 `yaml:"feature_weights"`
	WatchArchive     bool       `yaml:"watch_archive"`
}

// MetadataConfig gates the optional per-protocol metadata blocks a
// worker (internal/worker) attaches to an output record (spec.md 6).
type MetadataConfig struct {
	TLSClient    bool `yaml:"tls_client"`
	HTTPRequest  bool `yaml:"http_request"`
	HTTPResponse bool `yaml:"http_response"`
	SSHBanner    bool `yaml:"ssh_banner"`
	SSHKex       bool `yaml:"ssh_kex"`
	DNS          bool `yaml:"dns"`
	QUIC         bool `yaml:"quic"`
}

// AsMap returns the metadata flags keyed the way internal/worker's
// Config.MetadataEnabled expects ("tls.client", "http.request", ...).
func (m MetadataConfig) AsMap() map[string]bool {
	return map[string]bool{
		"tls.client":    m.TLSClient,
		"http.request":  m.HTTPRequest,
		"http.response": m.HTTPResponse,
		"ssh.banner":    m.SSHBanner,
		"ssh.kex":       m.SSHKex,
		"dns":           m.DNS,
		"quic":          m.QUIC,
	}
}

// TransportConfig names the NATS server and base subject the probe/
// engine split (internal/transport) uses. cmd/mercuryd appends
// ".<worker index>" to Subject so each worker subscribes to its own
// subject, per spec.md's "one capture/worker thread per NIC fanout
// queue".
type TransportConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// AlertRule is one malware-probability threshold rule the alert
// evaluator (internal/alert) checks on every CheckInterval tick.
type AlertRule struct {
	Name           string  `yaml:"name"`
	MinMalwareProb float64 `yaml:"min_malware_prob"`
	MinCount       int     `yaml:"min_count"`
}

// SMTPConfig is the mail relay internal/notify's EmailNotifier sends
// through.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// AlerterConfig configures the alert evaluator (internal/alert).
type AlerterConfig struct {
	Enabled       bool        `yaml:"enabled"`
	CheckInterval string      `yaml:"check_interval"`
	Rules         []AlertRule `yaml:"rules"`
	SMTP          SMTPConfig  `yaml:"smtp"`
}

// APIConfig configures the admin/query HTTP surface
// (internal/api, cmd/mercury-api).
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// HealthConfig configures the gRPC health-checking surface
// (internal/health).
type HealthConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire
// application, per SPEC_FULL.md 2.2.
type Config struct {
	Workers    WorkersConfig    `yaml:"workers"`
	Output     OutputConfig     `yaml:"output"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Transport  TransportConfig  `yaml:"transport"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	API        APIConfig        `yaml:"api"`
	Health     HealthConfig     `yaml:"health"`
}

// LoadConfig reads the configuration from a YAML file and returns a
// Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}
