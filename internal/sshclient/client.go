// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sshclient is the SSH device transport used by diagnostic
// capabilities (ssh.run_diagnostic) that the Redfish API doesn't cover.
package sshclient

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config describes how to reach one device over SSH.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// Client is a lazily-connected SSH session cache for one device. The
// underlying connection is established on first RunCommand call.
type Client struct {
	cfg     Config
	conn    *ssh.Client
	dialErr error
}

// New constructs a Client. No network I/O happens until the first command.
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg}
}

func (c *Client) connect() (*ssh.Client, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.dialErr != nil {
		return nil, c.dialErr
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // BMC/tray management networks are not web-facing; host key pinning is out of this spec's scope.
		Timeout:         c.cfg.Timeout,
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	conn, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		c.dialErr = fmt.Errorf("ssh dial %s: %w", addr, err)
		return nil, c.dialErr
	}
	c.conn = conn
	return conn, nil
}

// RunCommand executes one command and returns its combined stdout/stderr.
// ctx cancellation closes the underlying session, aborting the remote
// command's I/O (the session itself does not honor ctx directly since
// golang.org/x/crypto/ssh has no native context support).
func (c *Client) RunCommand(ctx context.Context, command string) (string, error) {
	conn, err := c.connect()
	if err != nil {
		return "", err
	}

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()
	defer close(done)

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	if err := session.Run(command); err != nil {
		if ctx.Err() != nil {
			return out.String(), ctx.Err()
		}
		return out.String(), fmt.Errorf("running %q: %w", command, err)
	}
	return out.String(), nil
}

// Close releases the underlying SSH connection, if one was established.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
