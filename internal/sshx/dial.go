package sshx

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"labfleet/internal/domain"
)

// NetDialer establishes real SSH connections.
type NetDialer struct{}

var _ Dialer = (*NetDialer)(nil)

// Dial connects and authenticates, classifying failures into the error
// taxonomy so callers can distinguish a rejected credential from a dead
// host.
func (d *NetDialer) Dial(ctx context.Context, host string, port int, cfg Config) (Client, error) {
	sshCfg, err := buildClientConfig(cfg)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, host, err)
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, domain.NewError(domain.KindOf(err), host, fmt.Errorf("dial %s: %w", addr, err))
	}

	if cfg.Timeout > 0 {
		// Bound the handshake too; a half-open TCP connection must not
		// stall the credential race.
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		kind := domain.KindOf(err)
		if strings.Contains(err.Error(), "unable to authenticate") {
			kind = domain.KindAuthFailed
		}
		return nil, domain.NewError(kind, host, fmt.Errorf("ssh handshake %s: %w", addr, err))
	}

	_ = conn.SetDeadline(time.Time{})

	return &client{ssh: ssh.NewClient(sshConn, chans, reqs), host: host}, nil
}

// buildClientConfig translates a Config into an ssh.ClientConfig,
// preferring key auth when a key is present.
func buildClientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("no user in ssh config")
	}

	var methods []ssh.AuthMethod

	if len(cfg.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if len(cfg.Passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cfg.PrivateKey, cfg.Passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(cfg.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no auth method for user %s", cfg.User)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}, nil
}
