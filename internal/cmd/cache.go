package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Aliases: []string{"ch"},
		Short:   "Manage cached GET responses",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Long: strings.TrimSpace(`
Remove the responses stored by 'ajax get --cache'. With cache.redis_url set
only keys under the ajax prefix are deleted.
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := openCache(settings, 0)
			if err != nil {
				return err
			}
			defer closeStore()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"cleared": removed})
			}
			noun := "responses"
			if removed == 1 {
				noun = "response"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached %s\n", removed, noun)
			return nil
		}),
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the cache directory and its entries",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if settings.Cache.RedisURL != "" {
				return fmt.Errorf("responses are cached in Redis, not on disk")
			}
			dir := settings.CacheDir()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, dir)

			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil // not created until the first cached response
			}
			for _, e := range entries {
				if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
					continue
				}
				info, err := e.Info()
				if err != nil {
					continue
				}
				_, _ = fmt.Fprintf(out, "  %s (%d bytes)\n", e.Name(), info.Size())
			}
			return nil
		}),
	}
}
