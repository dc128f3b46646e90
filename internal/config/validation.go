package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Validate checks the configuration and reports every problem found.
func (c *GlobalConfig) Validate() error {
	var errs []error

	if err := ValidateListenAddr(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}
	if c.Server.WebSocketListen != "" {
		if err := ValidateListenAddr(c.Server.WebSocketListen); err != nil {
			errs = append(errs, fmt.Errorf("server.websocket_listen: %w", err))
		}
		if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
			errs = append(errs, fmt.Errorf("server.websocket_path: %q must start with /", c.Server.WebSocketPath))
		}
	}
	if c.Server.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("server.batch_size: must be positive, got %d", c.Server.BatchSize))
	}
	if c.Server.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_frame_bytes: must be positive, got %d", c.Server.MaxFrameBytes))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout: must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout: must be positive"))
	}

	if c.Peer.Endpoint != "" {
		if err := ValidateEndpoint(c.Peer.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("peer.endpoint: %w", err))
		}
	}
	if c.Peer.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("peer.max_retries: must not be negative, got %d", c.Peer.MaxRetries))
	}
	if c.Peer.InitialBackoff <= 0 || c.Peer.MaxBackoff < c.Peer.InitialBackoff {
		errs = append(errs, errors.New("peer: backoff must be positive and max_backoff >= initial_backoff"))
	}

	if !c.Project.Disabled {
		if c.Project.Path == "" {
			errs = append(errs, errors.New("project.path: required unless the project is disabled"))
		}
		if c.Project.CheckpointInterval <= 0 {
			errs = append(errs, errors.New("project.checkpoint_interval: must be positive"))
		}
	}

	return errors.Join(errs...)
}

// ValidateListenAddr checks a host:port listen address.
func ValidateListenAddr(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return validatePort(port)
}

// ValidateEndpoint checks a peer endpoint: host:port, tcp://host:port,
// ws://host:port/path or wss://host:port/path.
func ValidateEndpoint(endpoint string) error {
	if !strings.Contains(endpoint, "://") {
		return ValidateListenAddr(endpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "tcp", "ws", "wss":
	default:
		return fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Scheme == "tcp" {
		return ValidateListenAddr(u.Host)
	}
	if p := u.Port(); p != "" {
		return validatePort(p)
	}
	return nil
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	// Port 0 asks the kernel for any free port.
	if n < 0 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	return nil
}
