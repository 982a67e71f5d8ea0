package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/shared/httpclient"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the audio cache of a running server",
	}
	cmd.AddCommand(cacheStatsCmd())
	return cmd
}

func cacheStatsCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audio cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := httpclient.New(httpclient.WithTimeout(10 * time.Second))
			resp, err := client.Get(serverURL + "/api/v1/cache/stats")
			if err != nil {
				return fmt.Errorf("fetch cache stats: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			var stats cache.Stats
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return fmt.Errorf("decode cache stats: %w", err)
			}

			fmt.Println("Audio cache:")
			fmt.Printf("  Entries:    %d\n", stats.Entries)
			fmt.Printf("  Size:       %s / %s\n",
				humanize.Bytes(uint64(stats.TotalSizeBytes)),
				humanize.Bytes(uint64(stats.MaxSizeBytes)))
			fmt.Printf("  Hits:       %d\n", stats.Hits)
			fmt.Printf("  Misses:     %d\n", stats.Misses)
			fmt.Printf("  Hit rate:   %.1f%%\n", stats.HitRate()*100)
			fmt.Printf("  Evictions:  %d\n", stats.Evictions)
			fmt.Printf("  Prefetched: %d (%d later served)\n", stats.PrefetchCount, stats.PrefetchHits)
			if len(stats.ProviderCounts) > 0 {
				fmt.Println("  By provider:")
				for p, n := range stats.ProviderCounts {
					fmt.Printf("    %-12s %d\n", p, n)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the voxlearn server")
	return cmd
}
