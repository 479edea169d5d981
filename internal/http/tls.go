package http

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/rotisserie/eris"
)

// TLSProfile represents a browser TLS fingerprint
type TLSProfile struct {
	Name     string
	ClientID utls.ClientHelloID
	// Header is the BrowserProfile name whose headers match this handshake
	Header string
}

var tlsProfiles = []TLSProfile{
	{Name: "Chrome_120", ClientID: utls.HelloChrome_120, Header: "chrome_windows"},
	{Name: "Edge_106", ClientID: utls.HelloEdge_106, Header: "edge_windows"},
	{Name: "Safari_16", ClientID: utls.HelloSafari_16_0, Header: "safari_macos"},
	{Name: "iOS_14", ClientID: utls.HelloIOS_14, Header: "safari_ios"},
}

// TLSFingerprinter hands out TLS fingerprints and transports that use them
type TLSFingerprinter struct {
	profiles []TLSProfile
	mu       sync.Mutex
	rnd      *rand.Rand
}

// NewTLSFingerprinter creates a new TLS fingerprinter
func NewTLSFingerprinter() *TLSFingerprinter {
	return &TLSFingerprinter{
		profiles: tlsProfiles,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetRandomProfile returns a random TLS profile
func (tf *TLSFingerprinter) GetRandomProfile() TLSProfile {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.profiles[tf.rnd.Intn(len(tf.profiles))]
}

// CreateTransport creates an HTTP/1.1 transport whose TLS ClientHello mimics
// the given browser. Proxied HTTPS connections are tunnelled by net/http
// itself and use the standard handshake.
func (tf *TLSFingerprinter) CreateTransport(profile TLSProfile, proxyURL *url.URL) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		rawConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		conn, err := handshake(ctx, rawConn, host, profile.ClientID)
		if err != nil {
			rawConn.Close()
			return nil, err
		}
		return conn, nil
	}

	return transport
}

func handshake(ctx context.Context, rawConn net.Conn, serverName string, id utls.ClientHelloID) (net.Conn, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, eris.Wrapf(err, "tls: spec for %s", id.Str())
	}

	// net/http cannot speak h2 over a foreign tls.Conn, so only offer http/1.1
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension:
			e.SupportedProtocols = []string{"http/1.1"}
		}
	}

	uconn := utls.UClient(rawConn, &utls.Config{ServerName: serverName}, utls.HelloCustom)
	if err := uconn.ApplyPreset(&spec); err != nil {
		return nil, eris.Wrap(err, "tls: apply preset")
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, eris.Wrap(err, "tls: handshake")
	}
	return uconn, nil
}

// GetMatchingHeaderProfile returns a header profile matching the TLS profile
func (tf *TLSFingerprinter) GetMatchingHeaderProfile(tlsProfile TLSProfile) BrowserProfile {
	for _, p := range browserProfiles {
		if p.Name == tlsProfile.Header {
			return p
		}
	}
	return browserProfiles[0]
}
