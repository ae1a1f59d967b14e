package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ac-xchange/uabridge/helpers"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const (
	DefaultIntervalMs      = 100
	DefaultNamespace       = 3
	DefaultRequestTimeout  = 30 * time.Second
	DefaultSessionTimeout  = 600 * time.Second
	DefaultChannelLifetime = 600 * time.Second
	DefaultConnectRetries  = 3
	DefaultSecurityPolicy  = "Basic256Sha256"
	DefaultSecurityMode    = "SignAndEncrypt"
	DefaultProductURI      = "urn:SimpleUAClient"
	DefaultApplicationName = "SimpleUAClient"
	DefaultStatusTopic     = "uabridge/state"
	DefaultStatusClientID  = "uabridge"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Source  Source  `hcl:"source"`
	OPCUA   OPCUA   `hcl:"opcua"`
	Bridge  Bridge  `hcl:"bridge"`
	Status  Status  `hcl:"status"`
	Metrics Metrics `hcl:"metrics"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Source names the two shared memory regions.
type Source struct {
	PhysicsName  string `hcl:"physics_name"`
	GraphicsName string `hcl:"graphics_name"`
	Dir          string `hcl:"dir"`
}

type OPCUA struct { //nolint:maligned
	Endpoint          string `hcl:"endpoint"`
	Username          string `hcl:"username"`
	Password          string `hcl:"password"` // secret
	Namespace         int    `hcl:"namespace"`
	SecurityPolicy    string `hcl:"security_policy"`
	SecurityMode      string `hcl:"security_mode"`
	CertFile          string `hcl:"cert_file"`
	KeyFile           string `hcl:"key_file"`
	ServerCertFile    string `hcl:"server_cert_file"`
	ApplicationURI    string `hcl:"application_uri"`
	ProductURI        string `hcl:"product_uri"`
	Hostname          string `hcl:"hostname"`
	RequestTimeoutMs  int    `hcl:"request_timeout_ms"`
	SessionTimeoutMs  int    `hcl:"session_timeout_ms"`
	ChannelLifetimeMs int    `hcl:"channel_lifetime_ms"`
	ConnectRetries    int    `hcl:"connect_retries"`
	LogDebug          bool   `hcl:"log_debug"`
}

func (self *OPCUA) RequestTimeout() time.Duration {
	return helpers.IntMillisecondDefault(self.RequestTimeoutMs, DefaultRequestTimeout)
}
func (self *OPCUA) SessionTimeout() time.Duration {
	return helpers.IntMillisecondDefault(self.SessionTimeoutMs, DefaultSessionTimeout)
}
func (self *OPCUA) ChannelLifetime() time.Duration {
	return helpers.IntMillisecondDefault(self.ChannelLifetimeMs, DefaultChannelLifetime)
}

type Bridge struct {
	IntervalMs int  `hcl:"interval_ms"`
	LogDebug   bool `hcl:"log_debug"`
}

func (self *Bridge) Interval() time.Duration {
	return helpers.IntMillisecondDefault(self.IntervalMs, DefaultIntervalMs*time.Millisecond)
}

// Validate rejects negative interval; zero means default.
func (self *Bridge) Validate() error {
	if self.IntervalMs < 0 {
		return errors.NotValidf("bridge.interval_ms=%d", self.IntervalMs)
	}
	return nil
}

type Status struct {
	Enabled           bool   `hcl:"enable"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	ClientID          string `hcl:"client_id"`
	Topic             string `hcl:"topic"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	TlsCaFile         string `hcl:"tls_ca_file"`
}

func (self *Status) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(self.NetworkTimeoutSec, 30*time.Second)
}

type Metrics struct {
	Listen string `hcl:"listen"`
}

// Default returns config with every default applied, as if read from empty file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.OPCUA.Namespace == 0 {
		c.OPCUA.Namespace = DefaultNamespace
	}
	if c.OPCUA.SecurityPolicy == "" {
		c.OPCUA.SecurityPolicy = DefaultSecurityPolicy
	}
	if c.OPCUA.SecurityMode == "" {
		c.OPCUA.SecurityMode = DefaultSecurityMode
	}
	if c.OPCUA.CertFile == "" {
		c.OPCUA.CertFile = "certs/client_cert.der"
	}
	if c.OPCUA.KeyFile == "" {
		c.OPCUA.KeyFile = "certs/client_key.der"
	}
	if c.OPCUA.ProductURI == "" {
		c.OPCUA.ProductURI = DefaultProductURI
	}
	if c.OPCUA.ConnectRetries == 0 {
		c.OPCUA.ConnectRetries = DefaultConnectRetries
	}
	if c.Bridge.IntervalMs == 0 {
		c.Bridge.IntervalMs = DefaultIntervalMs
	}
	if c.Status.ClientID == "" {
		c.Status.ClientID = DefaultStatusClientID
	}
	if c.Status.Topic == "" {
		c.Status.Topic = DefaultStatusTopic
	}
}

// ApplicationURIOrDefault is explicit application_uri or urn:<hostname>:SimpleUAClient.
func (self *OPCUA) ApplicationURIOrDefault() string {
	if self.ApplicationURI != "" {
		return self.ApplicationURI
	}
	return fmt.Sprintf("urn:%s:%s", self.Hostname, DefaultApplicationName)
}

// ApplyEnv overrides config with deployment environment:
// ENDPOINT, USERNAME, PASSWORD, DELAY_MS, HOSTNAME.
// Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ENDPOINT"); v != "" {
		c.OPCUA.Endpoint = v
	}
	if v := getenv("USERNAME"); v != "" {
		c.OPCUA.Username = v
	}
	if v := getenv("PASSWORD"); v != "" {
		c.OPCUA.Password = v
	}
	if v := getenv("HOSTNAME"); v != "" {
		c.OPCUA.Hostname = v
	}
	if v := getenv("DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return errors.Annotatef(err, "config env DELAY_MS=%s", v)
		}
		c.Bridge.IntervalMs = ms
	}
	return nil
}

// Validate returns every problem at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.OPCUA.Endpoint == "" {
		errs = append(errs, errors.NotValidf("opcua.endpoint empty"))
	}
	if c.OPCUA.Username == "" {
		errs = append(errs, errors.NotValidf("opcua.username empty"))
	}
	if c.OPCUA.Password == "" {
		errs = append(errs, errors.NotValidf("opcua.password empty"))
	}
	if c.OPCUA.Namespace < 0 || c.OPCUA.Namespace > 0xffff {
		errs = append(errs, errors.NotValidf("opcua.namespace=%d", c.OPCUA.Namespace))
	}
	if c.OPCUA.ConnectRetries < 0 {
		errs = append(errs, errors.NotValidf("opcua.connect_retries=%d", c.OPCUA.ConnectRetries))
	}
	if err := c.Bridge.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Status.Enabled && c.Status.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("status.mqtt_broker empty"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order, later values override earlier.
// First name sets base directory for relative includes when fs is *OsFullReader.
// Defaults are applied after all sources.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, errors.Trace(err)
		}
		names = append([]string{name}, names[1:]...)
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	c.applyDefaults()
	return c, helpers.FoldErrors(errs)
}
