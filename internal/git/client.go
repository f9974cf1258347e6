package git

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	crssh "golang.org/x/crypto/ssh"

	"github.com/hashicorp/go-hclog"
)

// Options configures how a repository is fetched. At most one authentication
// method applies: an SSH key path wins over an HTTP token; with neither set
// the clone is anonymous.
type Options struct {
	SSHKeyPath     string
	SSHKeyPassword string
	Username       string
	Token          string
	Timeout        time.Duration
}

// Client fetches repositories to analyze.
type Client struct {
	logger  hclog.Logger
	auth    transport.AuthMethod
	timeout time.Duration
}

// New builds a fetch client with authentication derived from opts.
func New(opts Options, logger hclog.Logger) (*Client, error) {
	c := &Client{
		logger:  logger.Named("git"),
		timeout: opts.Timeout,
	}
	if c.timeout == 0 {
		c.timeout = 10 * time.Minute
	}

	switch {
	case opts.SSHKeyPath != "":
		keys, err := ssh.NewPublicKeysFromFile("git", opts.SSHKeyPath, opts.SSHKeyPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to set up SSH key authentication: %w", err)
		}
		// TODO: verify host keys against known_hosts
		keys.HostKeyCallbackHelper = ssh.HostKeyCallbackHelper{
			HostKeyCallback: crssh.InsecureIgnoreHostKey(),
		}
		c.auth = keys
	case opts.Token != "":
		username := opts.Username
		if username == "" {
			username = "git"
		}
		c.auth = &http.BasicAuth{Username: username, Password: opts.Token}
	}

	return c, nil
}
