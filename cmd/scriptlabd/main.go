// Command scriptlabd runs the scriptlab daemon in the foreground. It reads
// the configuration named by SCRIPTLAB_CONFIG, or the default location.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"scriptlab/internal/config"
	"scriptlab/internal/daemonrun"
)

func main() {
	if err := run(context.Background(), os.Getenv("SCRIPTLAB_CONFIG")); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, _, _, err := config.Load(strings.TrimSpace(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{})
}
