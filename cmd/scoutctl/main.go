/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command scoutctl manages the service configurations scout watches and
// reads the status entries it publishes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/carverauto/scout/pkg/config"
	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

const (
	commandTimeout = 30 * time.Second
	usage          = `usage: scoutctl [flags] <command> [args]

commands:
  put <service> <file|->   validate and store a service configuration
  get <service>            print a service configuration
  delete <service>         remove a service configuration
  list                     list configured services
  status <prefix>          print the status entries published under prefix
`
)

var (
	errUsage        = errors.New("invalid usage")
	errUnknownCmd   = errors.New("unknown command")
	errInvalidInput = errors.New("invalid service configuration")
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, errUnknownCmd) {
			fmt.Fprint(os.Stderr, usage)
		}

		log.Fatalf("scoutctl: %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("scoutctl", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("SCOUT_CONFIG"), "Path to JSON config file")
	natsURL := fs.String("nats-url", "", "NATS server URL (overrides config)")
	root := fs.String("root", "", "Path holding service configurations (overrides config)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if fs.NArg() == 0 {
		return errUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	log := logger.NewWithWriter(os.Stderr, zerolog.WarnLevel)

	cfg, err := config.Load(ctx, *configPath, log)
	if err != nil {
		return err
	}

	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}

	if *root != "" {
		cfg.ConfigRoot = *root
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := coord.Connect(ctx, cfg.CoordConfig(), log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	c := &ctl{store: store, root: cfg.ConfigRoot, stdin: stdin, stdout: stdout}

	return c.dispatch(ctx, fs.Args())
}

type ctl struct {
	store  coord.Store
	root   string
	stdin  io.Reader
	stdout io.Writer
}

func (c *ctl) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]

	want := map[string]int{"put": 2, "get": 1, "delete": 1, "list": 0, "status": 1}

	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownCmd, cmd)
	}

	if len(rest) != n {
		return fmt.Errorf("%w: %s takes %d argument(s)", errUsage, cmd, n)
	}

	switch cmd {
	case "put":
		return c.put(ctx, rest[0], rest[1])
	case "get":
		return c.get(ctx, rest[0])
	case "delete":
		return c.store.Delete(ctx, coord.JoinPath(c.root, rest[0]))
	case "list":
		return c.list(ctx)
	default:
		return c.status(ctx, rest[0])
	}
}

func (c *ctl) put(ctx context.Context, name, source string) error {
	var (
		data []byte
		err  error
	)

	if source == "-" {
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(source)
	}

	if err != nil {
		return err
	}

	if _, err := models.ParseServiceConfig(data); err != nil {
		return fmt.Errorf("%w: %w", errInvalidInput, err)
	}

	if err := c.store.EnsurePath(ctx, c.root); err != nil {
		return err
	}

	path := coord.JoinPath(c.root, name)

	err = c.store.Set(ctx, path, data)
	if errors.Is(err, coord.ErrNoNode) {
		err = c.store.Create(ctx, path, data, coord.Persistent)
	}

	return err
}

func (c *ctl) get(ctx context.Context, name string) error {
	data, err := c.store.Get(ctx, coord.JoinPath(c.root, name))
	if err != nil {
		return err
	}

	cfg, err := models.ParseServiceConfig(data)
	if err != nil {
		// Print what is stored even when it would be rejected.
		_, werr := fmt.Fprintln(c.stdout, string(data))

		return errors.Join(err, werr)
	}

	return c.printJSON(cfg)
}

func (c *ctl) list(ctx context.Context) error {
	names, err := c.store.Children(ctx, c.root)
	if err != nil {
		return err
	}

	for _, name := range names {
		if _, err := fmt.Fprintln(c.stdout, name); err != nil {
			return err
		}
	}

	return nil
}

func (c *ctl) status(ctx context.Context, prefix string) error {
	hosts, err := c.store.Children(ctx, prefix)
	if err != nil {
		return err
	}

	out := make(map[string]models.StatusRecord, len(hosts))

	for _, host := range hosts {
		data, err := c.store.Get(ctx, coord.JoinPath(prefix, host))
		if errors.Is(err, coord.ErrNoNode) {
			continue
		}

		if err != nil {
			return err
		}

		var rec models.StatusRecord
		if err := json.Unmarshal(data, &rec); err != nil || !rec.Valid() {
			continue
		}

		out[host] = rec
	}

	return c.printJSON(out)
}

func (c *ctl) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
