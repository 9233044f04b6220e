package sftp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the deploy user authenticates.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication.
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey uses private key authentication.
	AuthMethodKey AuthMethod = "key"
)

// keyringService is the service name deploy credentials are stored
// under in the operating system keyring.
const keyringService = "sundae"

// Config holds the connection settings for one origin host.
type Config struct {
	// Host is the origin hostname or IP address.
	Host string

	// Port is the SSH port.
	Port int

	// User is the deploy user.
	User string

	// RemoteRoot is the directory the content tree is published under.
	// Backend paths are relative to it.
	RemoteRoot string

	// AuthMethod selects password or key authentication.
	AuthMethod AuthMethod

	// Password for password authentication. When empty it is looked up
	// in the OS keyring under "user@host".
	Password string

	// PrivateKeyPath is the private key file for key authentication.
	// When empty the usual ~/.ssh locations are tried.
	PrivateKeyPath string

	// PrivateKeyPassphrase decrypts an encrypted private key. When
	// empty and the key turns out to be encrypted, the OS keyring is
	// consulted under the key path.
	PrivateKeyPassphrase string

	// KnownHostsPath is the known_hosts file used for host key
	// verification.
	KnownHostsPath string

	// StrictHostKeyChecking rejects hosts missing from known_hosts.
	// When disabled, any host key is accepted.
	StrictHostKeyChecking bool

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// CommandTimeout bounds the remote checksum command that hashes
	// the deployed tree in one round trip.
	CommandTimeout time.Duration

	// KeepAliveInterval is the keep-alive period for long transfers.
	// Zero disables keep-alive.
	KeepAliveInterval time.Duration

	// MaxKeepAliveRetries is how many keep-alive failures are
	// tolerated before the connection is presumed dead.
	MaxKeepAliveRetries int
}

// DefaultConfig returns a Config with the usual defaults for a deploy
// push target.
func DefaultConfig(host, user, remoteRoot string) *Config {
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		RemoteRoot:            remoteRoot,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectTimeout:        30 * time.Second,
		CommandTimeout:        2 * time.Minute,
		KeepAliveInterval:     30 * time.Second,
		MaxKeepAliveRetries:   3,
	}
}

// Validate checks the configuration and fills defaults: a missing
// private key path is discovered from the usual ~/.ssh locations, and a
// missing password is looked up in the OS keyring.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.RemoteRoot == "" {
		return fmt.Errorf("remote root is required")
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			if secret, ok := lookupKeyring(c.User + "@" + c.Host); ok {
				c.Password = secret
			}
		}
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			home := os.Getenv("HOME")
			for _, candidate := range []string{
				filepath.Join(home, ".ssh", "id_ed25519"),
				filepath.Join(home, ".ssh", "id_rsa"),
				filepath.Join(home, ".ssh", "id_ecdsa"),
			} {
				if _, err := os.Stat(candidate); err == nil {
					c.PrivateKeyPath = candidate
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("private key path is required for key authentication and no default key found")
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}

	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))

		// Some servers only offer keyboard-interactive for what is
		// effectively password auth.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		signer, err := c.loadSigner()
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))

	default:
		return nil, fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

// loadSigner parses the private key, consulting the OS keyring for a
// passphrase when the key turns out to be encrypted.
func (c *Config) loadSigner() (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	if c.PrivateKeyPassphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	secret, ok := lookupKeyring(c.PrivateKeyPath)
	if !ok {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase is available: %w", c.PrivateKeyPath, err)
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key with keyring passphrase: %w", err)
	}
	return signer, nil
}

// lookupKeyring reads a secret from the OS keyring. Absent entries and
// unavailable keyrings both report false; callers fall back to their
// explicit-credential errors.
func lookupKeyring(account string) (string, bool) {
	secret, err := keyring.Get(keyringService, account)
	if err != nil {
		return "", false
	}
	return secret, true
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
