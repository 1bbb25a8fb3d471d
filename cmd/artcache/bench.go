package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/IH0kN3m/Petrichor/internal/artwork"
	"github.com/IH0kN3m/Petrichor/internal/config"
	"github.com/IH0kN3m/Petrichor/internal/logging"
)

// dirSource serves artwork bytes from files in a directory, keyed by file
// name. It stands in for the metadata-extraction layer.
type dirSource struct {
	dir string
}

func (d dirSource) Artwork(_ context.Context, entityID string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.dir, entityID))
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		size    int
		purpose string
	)

	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Run a fetch storm against a directory of artwork",
		Long: "Fetches a thumbnail for every image in the directory twice: a cold\n" +
			"pass that decodes everything through the gate, then a warm pass that\n" +
			"should be served entirely from the cache.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.FromContext(cmd.Context())

			ids, err := listImages(args[0])
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no images found in %s", args[0])
			}

			// The configured size class for the purpose applies unless
			// --size was given explicitly.
			if !cmd.Flags().Changed("size") {
				if v, ok := a.cfg.Decode.SizeClasses[purpose]; ok && v > 0 {
					size = v
				}
			}

			svc := artwork.NewService(dirSource{dir: args[0]},
				artwork.WithLogger(*log),
				artwork.WithCacheLimits(a.cfg.Cache.MaxEntries, a.cfg.Cache.MaxTotalCostBytes),
				artwork.WithDecodeConcurrency(a.cfg.Decode.MaxConcurrent),
			)
			defer svc.Close()

			// Cache limit edits in the config file apply live.
			a.mgr.Watch(func(cfg config.Config) {
				svc.ConfigureCacheLimits(cfg.Cache.MaxEntries, cfg.Cache.MaxTotalCostBytes)
			})

			for pass, name := range []string{"cold", "warm"} {
				elapsed, ok, failed := fetchAll(cmd.Context(), svc, ids, artwork.Purpose(purpose), size)
				entries, cost := svc.Stats()
				log.Info().
					Int("pass", pass+1).
					Str("kind", name).
					Int("images", len(ids)).
					Int64("delivered", ok).
					Int64("unavailable", failed).
					Dur("elapsed", elapsed).
					Int("cache_entries", entries).
					Int64("cache_cost_bytes", cost).
					Msg("bench pass complete")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 320, "max pixel dimension of the thumbnails")
	cmd.Flags().StringVar(&purpose, "purpose", "grid", "size class to fetch (grid or list)")
	return cmd
}

// fetchAll issues one fetch per id and waits for every handle to settle.
func fetchAll(ctx context.Context, svc *artwork.Service, ids []string, purpose artwork.Purpose, size int) (time.Duration, int64, int64) {
	var (
		wg     sync.WaitGroup
		ok     atomic.Int64
		failed atomic.Int64
	)

	start := time.Now()
	for _, id := range ids {
		wg.Add(1)
		h := svc.FetchThumbnail(ctx, id, purpose, size, func(res artwork.LoadResult) {
			if res.OK {
				ok.Add(1)
			} else {
				failed.Add(1)
			}
		})
		go func() {
			<-h.Done()
			wg.Done()
		}()
	}
	wg.Wait()
	return time.Since(start), ok.Load(), failed.Load()
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif":
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
