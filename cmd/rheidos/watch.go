package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/RudreshVeerkhare/rheidos/session"
)

const debounceInterval = 300 * time.Millisecond

func (c *cli) watchCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "watch <mesh.obj> <constraints.txt>",
		Short: "Re-solve whenever the mesh or constraint file changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			s, err := session.New(cfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			return c.watchAndSolve(cmd.Context(), s, args[0], args[1], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "rewrite the field to this file after each solve")
	return cmd
}

func (c *cli) watchAndSolve(ctx context.Context, s *session.Session, meshPath, consPath, output string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range []string{meshPath, consPath} {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	c.resolve(s, meshPath, consPath, output)

	// The debounce timer fires into the select loop so every resolve runs
	// on this goroutine; the session is not safe for concurrent use.
	debounce := time.NewTimer(debounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceInterval)
			// Editors that replace the file drop the watch; re-add it.
			if event.Has(fsnotify.Create) {
				_ = watcher.Add(event.Name)
			}

		case <-debounce.C:
			c.resolve(s, meshPath, consPath, output)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("watcher error", "err", err)
		}
	}
}

// resolve reloads the inputs, solves, and optionally rewrites the output
// file. Load or solve failures are logged, not fatal; the watch keeps going.
func (c *cli) resolve(s *session.Session, meshPath, consPath, output string) {
	u, err := c.solveOnce(s, meshPath, consPath)
	if err != nil {
		c.logger.Error("solve failed", "err", err)
		return
	}
	if output == "" {
		return
	}
	f, err := os.Create(output)
	if err != nil {
		c.logger.Error("write output", "err", err)
		return
	}
	defer f.Close()
	if err := writeField(f, u); err != nil {
		c.logger.Error("write output", "err", err)
	}
}
