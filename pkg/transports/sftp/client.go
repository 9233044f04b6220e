package sftp

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// TransportError classifies a transport failure. IsTemporary failures
// are worth retrying on a fresh connection; IsAuthError failures need
// operator attention, not retries.
type TransportError struct {
	Op          string
	Path        string
	Err         error
	IsTemporary bool
	IsAuthError bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("sftp %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("sftp %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying might help.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// client manages the SSH connection and SFTP session for one origin
// host. Sessions are handed out through getSFTP, which redials when the
// connection has died in between operations; a sync that fails over a
// dropped connection can still roll back through the same backend.
type client struct {
	config *Config
	logger *telemetry.Logger

	mu         sync.Mutex
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	connected  bool
}

// newClient validates the config and prepares a client. No connection
// is made until the first operation.
func newClient(config *Config, logger *telemetry.Logger) (*client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sftp config: %w", err)
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &client{
		config: config,
		logger: logger.NewComponentLogger("sftp"),
	}, nil
}

// getSFTP returns a live SFTP session, dialing or redialing as needed.
func (c *client) getSFTP(ctx context.Context) (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.sftpClient != nil {
		if c.healthy() {
			return c.sftpClient, nil
		}
		c.logger.Warn().Str("host", c.config.Host).Msg("Connection is dead, reconnecting")
		_ = c.closeLocked()
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.sftpClient, nil
}

// healthy probes the session with a cheap round trip. Must hold mu.
func (c *client) healthy() bool {
	_, err := c.sftpClient.Getwd()
	return err == nil
}

// connectLocked dials the host and opens the SFTP subsystem. Must hold
// mu.
func (c *client) connectLocked(ctx context.Context) error {
	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	c.logger.Debug().Str("address", address).Msg("Establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case sshClient = <-connChan:
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return &TransportError{
			Op:          "connect",
			Err:         fmt.Errorf("failed to open sftp subsystem: %w", err),
			IsTemporary: true,
		}
	}

	c.sshClient = sshClient
	c.sftpClient = sftpClient
	c.connected = true

	if c.config.KeepAliveInterval > 0 {
		go c.keepAlive(sshClient)
	}

	c.logger.Info().
		Str("address", address).
		Str("root", c.config.RemoteRoot).
		Msg("SFTP connection established")
	return nil
}

// keepAlive pings the server until the connection it was started for is
// replaced or closed.
func (c *client) keepAlive(sshClient *ssh.Client) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	failures := 0
	for range ticker.C {
		c.mu.Lock()
		current := c.connected && c.sshClient == sshClient
		c.mu.Unlock()
		if !current {
			return
		}

		_, _, err := sshClient.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			failures++
			c.logger.Warn().Err(err).Int("failures", failures).Msg("Keep-alive failed")
			if failures >= c.config.MaxKeepAliveRetries {
				c.logger.Warn().Msg("Keep-alive gave up, connection presumed dead")
				return
			}
		} else {
			failures = 0
		}
	}
}

// Close tears down the SFTP session and SSH connection.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// closeLocked must hold mu.
func (c *client) closeLocked() error {
	if !c.connected {
		return nil
	}
	c.connected = false

	var firstErr error
	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			firstErr = err
		}
		c.sftpClient = nil
	}
	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.sshClient = nil
	}
	if firstErr != nil {
		return &TransportError{Op: "close", Err: firstErr}
	}
	return nil
}

// hashTree checksums every file under root in a single remote command,
// returning slash-relative paths to hex digests. Restricted deploy
// users without shell access make the command fail; the caller falls
// back to hashing over SFTP.
func (c *client) hashTree(ctx context.Context, root string) (map[string]string, error) {
	c.mu.Lock()
	sshClient := c.sshClient
	connected := c.connected
	c.mu.Unlock()

	if !connected || sshClient == nil {
		return nil, &TransportError{Op: "hash-tree", Err: fmt.Errorf("not connected")}
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "hash-tree",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmd := fmt.Sprintf("cd %s && find . -type f -exec sha256sum {} +", shellQuote(root))

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		return nil, &TransportError{Op: "hash-tree", Err: ctx.Err(), IsTemporary: true}
	case err := <-done:
		if err != nil {
			return nil, &TransportError{
				Op:  "hash-tree",
				Err: fmt.Errorf("checksum command failed: %v: %s", err, strings.TrimSpace(stderr.String())),
			}
		}
	}

	return parseChecksumOutput(stdout.String()), nil
}

// parseChecksumOutput parses sha256sum lines of the form
// "<hex>  ./relative/path". Lines that do not parse cleanly, including
// the backslash-escaped form sha256sum uses for unusual filenames, are
// skipped; their files get hashed over SFTP instead.
func parseChecksumOutput(output string) map[string]string {
	hashes := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 66 {
			continue
		}
		digest := line[:64]
		if _, err := hex.DecodeString(digest); err != nil {
			continue
		}
		rest := strings.TrimLeft(line[64:], " *")
		rest = strings.TrimPrefix(rest, "./")
		if rest == "" {
			continue
		}
		hashes[rest] = digest
	}
	return hashes
}

// shellQuote single-quotes a path for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
