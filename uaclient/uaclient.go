// Package uaclient establishes secure username-authenticated OPC UA session.
package uaclient

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"
	"strings"
	"time"

	"github.com/ac-xchange/uabridge/config"
	"github.com/ac-xchange/uabridge/helpers"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/juju/errors"
)

const policyURIPrefix = "http://opcfoundation.org/UA/SecurityPolicy#"

var ErrNoEndpoint = errors.New("uaclient: no matching endpoint")

type Connector struct {
	Log     *log2.Log
	Config  config.OPCUA
	Backoff helpers.Backoff

	// test code replaces network calls
	getEndpoints func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error)
	dial         func(ctx context.Context, endpoint string, opts []opcua.Option) (*opcua.Client, error)
}

func NewConnector(log *log2.Log, c config.OPCUA) *Connector {
	return &Connector{
		Log:    log,
		Config: c,
		Backoff: helpers.Backoff{
			Min: 1 * time.Second,
			Max: 30 * time.Second,
			K:   2,
		},
	}
}

// Connect is NewConnector(...).Connect(ctx).
func Connect(ctx context.Context, log *log2.Log, c config.OPCUA) (*opcua.Client, error) {
	return NewConnector(log, c).Connect(ctx)
}

// Connect tries 1+ConnectRetries times with exponential backoff between attempts.
func (self *Connector) Connect(ctx context.Context) (*opcua.Client, error) {
	secOpts, err := self.credentials()
	if err != nil {
		return nil, errors.Trace(err)
	}

	for attempt := 1; ; attempt++ {
		client, err := self.connectOnce(ctx, secOpts)
		if err == nil {
			self.Backoff.Reset()
			self.Log.Infof("uaclient connected endpoint=%s attempt=%d", self.Config.Endpoint, attempt)
			return client, nil
		}
		if attempt > self.Config.ConnectRetries {
			return nil, errors.Annotatef(err, "uaclient connect endpoint=%s attempts=%d", self.Config.Endpoint, attempt)
		}
		delay := self.Backoff.DelayAfter(false)
		self.Log.Errorf("uaclient connect endpoint=%s attempt=%d err=%v retry in %v", self.Config.Endpoint, attempt, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Annotatef(ctx.Err(), "uaclient connect endpoint=%s", self.Config.Endpoint)
		}
	}
}

// credentials loads client certificate and key, once for all attempts.
func (self *Connector) credentials() ([]opcua.Option, error) {
	c := &self.Config
	cert, err := LoadCertificate(c.CertFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	key, err := LoadPrivateKey(c.KeyFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := []opcua.Option{
		opcua.Certificate(cert),
		opcua.PrivateKey(key),
	}
	if c.ServerCertFile != "" {
		serverCert, err := LoadCertificate(c.ServerCertFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		opts = append(opts, opcua.RemoteCertificate(serverCert))
	}
	return opts, nil
}

func (self *Connector) connectOnce(ctx context.Context, secOpts []opcua.Option) (*opcua.Client, error) {
	c := &self.Config
	getEndpoints := self.getEndpoints
	if getEndpoints == nil {
		getEndpoints = func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
			return opcua.GetEndpoints(ctx, endpoint)
		}
	}
	eps, err := getEndpoints(ctx, c.Endpoint)
	if err != nil {
		return nil, errors.Annotate(err, "get endpoints")
	}
	policyURI := PolicyURI(c.SecurityPolicy)
	mode := ua.MessageSecurityModeFromString(c.SecurityMode)
	ep := SelectEndpoint(eps, policyURI, mode)
	if ep == nil {
		return nil, errors.Annotatef(ErrNoEndpoint, "policy=%s mode=%s offered=%d", policyURI, c.SecurityMode, len(eps))
	}
	self.Log.Debugf("uaclient endpoint url=%s policy=%s mode=%v level=%d", ep.EndpointURL, ep.SecurityPolicyURI, ep.SecurityMode, ep.SecurityLevel)

	opts := append([]opcua.Option{}, secOpts...)
	opts = append(opts, self.Options(ep)...)

	dial := self.dial
	if dial == nil {
		dial = dialClient
	}
	return dial(ctx, c.Endpoint, opts)
}

// Options are session options for selected endpoint, credentials excluded.
func (self *Connector) Options(ep *ua.EndpointDescription) []opcua.Option {
	c := &self.Config
	return []opcua.Option{
		opcua.ApplicationURI(c.ApplicationURIOrDefault()),
		opcua.ApplicationName(config.DefaultApplicationName),
		opcua.ProductURI(c.ProductURI),
		opcua.AuthUsername(c.Username, c.Password),
		opcua.SecurityFromEndpoint(ep, ua.UserTokenTypeUserName),
		opcua.RequestTimeout(c.RequestTimeout()),
		opcua.SessionTimeout(c.SessionTimeout()),
		opcua.Lifetime(c.ChannelLifetime()),
	}
}

func dialClient(ctx context.Context, endpoint string, opts []opcua.Option) (*opcua.Client, error) {
	client, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "new client")
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Annotate(err, "connect")
	}
	return client, nil
}

// PolicyURI accepts short policy name like Basic256Sha256 or full URI.
func PolicyURI(policy string) string {
	if policy == "" {
		policy = config.DefaultSecurityPolicy
	}
	if strings.Contains(policy, "://") {
		return policy
	}
	return policyURIPrefix + policy
}

// SelectEndpoint returns endpoint with matching policy and mode that accepts
// username token, highest security level wins. Nil if none.
func SelectEndpoint(eps []*ua.EndpointDescription, policyURI string, mode ua.MessageSecurityMode) *ua.EndpointDescription {
	var best *ua.EndpointDescription
	for _, ep := range eps {
		if ep == nil || ep.SecurityPolicyURI != policyURI || ep.SecurityMode != mode {
			continue
		}
		if !acceptsUsername(ep) {
			continue
		}
		if best == nil || ep.SecurityLevel > best.SecurityLevel {
			best = ep
		}
	}
	return best
}

func acceptsUsername(ep *ua.EndpointDescription) bool {
	for _, t := range ep.UserIdentityTokens {
		if t != nil && t.TokenType == ua.UserTokenTypeUserName {
			return true
		}
	}
	return false
}

// LoadCertificate reads DER or PEM certificate and returns DER bytes.
func LoadCertificate(path string) ([]byte, error) {
	b, err := readNonEmpty(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(b); block != nil {
		b = block.Bytes
	}
	if _, err := x509.ParseCertificate(b); err != nil {
		return nil, errors.Annotatef(err, "certificate path=%s", path)
	}
	return b, nil
}

// LoadPrivateKey reads RSA key, DER or PEM, PKCS#1 or PKCS#8.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := readNonEmpty(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(b); block != nil {
		b = block.Bytes
	}
	if key, err := x509.ParsePKCS1PrivateKey(b); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(b)
	if err != nil {
		return nil, errors.Annotatef(err, "private key path=%s", path)
	}
	key, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.NotSupportedf("private key path=%s type=%T", path, k)
	}
	return key, nil
}

func readNonEmpty(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.NotValidf("empty file path")
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read path=%s", path)
	}
	if len(b) == 0 {
		return nil, errors.NotValidf("empty file path=%s", path)
	}
	return b, nil
}
