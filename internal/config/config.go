package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BioHazard786/roomrelay/internal/protocol"
)

// Default configuration values
const (
	DefaultListenAddr      = ":3000"
	DefaultMaxMessageBytes = 64 * 1024
	DefaultOutboxLimit     = 1024
	DefaultShutdownTimeout = 10 * time.Second

	DefaultServerURL = "ws://localhost:3000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultCodec     = "json"

	minMessageBytes = 1024
)

var ErrInvalidConfig = errors.New("invalid config")

// Server holds settings for `roomrelay serve`.
type Server struct {
	ListenAddr      string        `yaml:"listen_addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	OutboxLimit     int           `yaml:"outbox_limit"`
	ExposeRooms     bool          `yaml:"expose_rooms"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Client holds settings for the joining side.
type Client struct {
	ServerURL  string `yaml:"server_url"`
	STUNServer string `yaml:"stun_server"`
	Codec      string `yaml:"codec"`
}

// File is the layout of the YAML config file.
type File struct {
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
}

// ServerOptions carries CLI flag overrides. Zero values mean "not set".
type ServerOptions struct {
	ConfigPath     string
	ListenAddr     string
	AllowedOrigins string
	ExposeRooms    bool
}

// ClientOptions carries CLI flag overrides. Zero values mean "not set".
type ClientOptions struct {
	ConfigPath string
	ServerURL  string
	STUNServer string
	Codec      string
}

type lookupFunc func(string) (string, bool)

// LoadServer reads configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*Server, error) {
	return loadServer(opts, os.LookupEnv)
}

func loadServer(opts ServerOptions, lookup lookupFunc) (*Server, error) {
	file, err := readFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := file.Server

	// Listen address: flag > LISTEN_ADDR > PORT > file > default
	switch {
	case opts.ListenAddr != "":
		cfg.ListenAddr = opts.ListenAddr
	case env(lookup, "LISTEN_ADDR") != "":
		cfg.ListenAddr = env(lookup, "LISTEN_ADDR")
	case env(lookup, "PORT") != "":
		cfg.ListenAddr = ":" + env(lookup, "PORT")
	case cfg.ListenAddr == "":
		cfg.ListenAddr = DefaultListenAddr
	}

	origins := opts.AllowedOrigins
	if origins == "" {
		origins = env(lookup, "ALLOWED_ORIGINS")
	}
	if origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	if v := env(lookup, "MAX_MESSAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: MAX_MESSAGE_BYTES: %v", ErrInvalidConfig, err)
		}
		cfg.MaxMessageBytes = n
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	if v := env(lookup, "OUTBOX_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: OUTBOX_LIMIT: %v", ErrInvalidConfig, err)
		}
		cfg.OutboxLimit = n
	}
	if cfg.OutboxLimit == 0 {
		cfg.OutboxLimit = DefaultOutboxLimit
	}

	if opts.ExposeRooms {
		cfg.ExposeRooms = true
	} else if v := env(lookup, "EXPOSE_ROOMS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: EXPOSE_ROOMS: %v", ErrInvalidConfig, err)
		}
		cfg.ExposeRooms = b
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c *Server) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidConfig)
	}
	if c.MaxMessageBytes < minMessageBytes {
		return fmt.Errorf("%w: max_message_bytes must be at least %d, got %d", ErrInvalidConfig, minMessageBytes, c.MaxMessageBytes)
	}
	if c.OutboxLimit < 1 {
		return fmt.Errorf("%w: outbox_limit must be positive, got %d", ErrInvalidConfig, c.OutboxLimit)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown_timeout is negative", ErrInvalidConfig)
	}
	return nil
}

// AllowsAnyOrigin reports whether the origin list contains the wildcard.
func (c *Server) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// LoadClient reads client configuration with the same priority as
// LoadServer.
func LoadClient(opts ClientOptions) (*Client, error) {
	return loadClient(opts, os.LookupEnv)
}

func loadClient(opts ClientOptions, lookup lookupFunc) (*Client, error) {
	file, err := readFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := file.Client

	cfg.ServerURL = pick(opts.ServerURL, env(lookup, "RELAY_URL"), cfg.ServerURL, DefaultServerURL)
	cfg.STUNServer = pick(opts.STUNServer, env(lookup, "STUN_SERVER"), cfg.STUNServer, DefaultSTUN)
	cfg.Codec = strings.ToLower(pick(opts.Codec, env(lookup, "RELAY_CODEC"), cfg.Codec, DefaultCodec))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c *Client) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server_url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: server_url must use ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server_url has no host", ErrInvalidConfig)
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("%w: codec: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HTTPURL returns the plain HTTP address of path on the relay that
// ServerURL points at.
func (c *Client) HTTPURL(path string) string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = path
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func readFile(path string) (*File, error) {
	f := &File{}
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return f, nil
}

func env(lookup lookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
