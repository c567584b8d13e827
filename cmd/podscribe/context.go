package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"podscribe/internal/config"
	"podscribe/internal/ipc"
	"podscribe/internal/queue"
)

// commandContext lazily resolves configuration and daemon connectivity for
// subcommands.
type commandContext struct {
	configPath string
	socketPath string

	once sync.Once
	cfg  *config.Config
	err  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		c.cfg, _, _, c.err = config.Load(c.configPath)
	})
	return c.cfg, c.err
}

func (c *commandContext) socket() (string, error) {
	if c.socketPath != "" {
		return c.socketPath, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Paths.LogDir, ipc.SocketName), nil
}

// withClient runs fn against the daemon's control socket.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket, err := c.socket()
	if err != nil {
		return err
	}
	client, err := ipc.Dial(socket)
	if err != nil {
		return fmt.Errorf("daemon not reachable (is podscribed running?): %w", err)
	}
	defer client.Close()
	return fn(client)
}

// withStore opens the queue database directly. Used by read-only commands
// when the daemon is down, and by commands that must work without it.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
