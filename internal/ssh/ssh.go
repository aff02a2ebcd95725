package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type NetDialer struct{ Timeout time.Duration }

func (d NetDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, network, addr)
}

// Params are the connection parameters for one session.
type Params struct {
	Host     string
	Port     int
	User     string
	Password string
	// Timeout bounds the dial and, when set, every single read or write on the connection.
	Timeout    time.Duration
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Dialer     Dialer
}

func (p Params) Addr() string {
	port := p.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Session is one authenticated connection to a remote host. It is not safe for
// concurrent commands.
type Session struct {
	Addr string

	client *xssh.Client
	sink   Sink
	sftp   *sftp.Client
}

// Open dials the host, completes the handshake and authenticates.
func Open(ctx context.Context, p Params, sink Sink) (*Session, error) {
	addr := p.Addr()
	if sink == nil {
		sink = NopSink{}
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = NetDialer{Timeout: p.Timeout}
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	if p.Timeout > 0 {
		conn = &deadlineConn{Conn: conn, timeout: p.Timeout}
	}

	// Flipped once the host key is accepted, which means key exchange completed
	// and any later failure happened during authentication.
	var kexDone atomic.Bool
	cfg := p.clientConfig(&kexDone)

	c, chans, reqs, err := xssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		if kexDone.Load() {
			return nil, &AuthError{User: p.User, Addr: addr, Err: err}
		}
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	if c.User() != p.User || len(c.SessionID()) == 0 {
		_ = c.Close()
		return nil, &AuthError{User: p.User, Addr: addr, Err: errors.New("session not authenticated")}
	}
	return &Session{Addr: addr, client: xssh.NewClient(c, chans, reqs), sink: sink}, nil
}

func (p Params) clientConfig(kexDone *atomic.Bool) *xssh.ClientConfig {
	var auths []xssh.AuthMethod
	if p.Signer != nil {
		auths = append(auths, xssh.PublicKeys(p.Signer))
	}
	auths = append(auths, xssh.Password(p.Password))
	hostKeys := p.KnownHosts
	if hostKeys == nil {
		hostKeys = xssh.InsecureIgnoreHostKey() // no known_hosts configured
	}
	return &xssh.ClientConfig{
		User: p.User,
		Auth: auths,
		HostKeyCallback: func(hostname string, remote net.Addr, key xssh.PublicKey) error {
			if err := hostKeys(hostname, remote, key); err != nil {
				return err
			}
			kexDone.Store(true)
			return nil
		},
		Timeout: p.Timeout,
	}
}

// Close releases the SFTP client, if any, and the connection.
func (s *Session) Close() error {
	if s.sftp != nil {
		_ = s.sftp.Close()
		s.sftp = nil
	}
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Session) newChannel(ctx context.Context) (*xssh.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, errors.New("ssh: session closed")
	}
	ch, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new channel: %w", err)
	}
	return ch, nil
}

// deadlineConn refreshes the deadline before every read and write, giving
// per-operation timeouts on top of net.Conn's absolute deadlines.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
