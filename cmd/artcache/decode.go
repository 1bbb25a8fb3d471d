package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IH0kN3m/Petrichor/internal/artwork"
	"github.com/IH0kN3m/Petrichor/internal/logging"
)

func newDecodeCmd(a *app) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode one image through the thumbnail pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.FromContext(cmd.Context())

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			gen := artwork.NewGenerator(int64(a.cfg.Decode.MaxConcurrent), *log)
			bmp, ok := gen.Generate(cmd.Context(), data, size)
			if !ok {
				return fmt.Errorf("no artwork: %s could not be decoded", args[0])
			}

			log.Info().
				Str("file", args[0]).
				Int("width", bmp.Width()).
				Int("height", bmp.Height()).
				Int("encoded_bytes", bmp.EncodedSize).
				Int64("cost_bytes", bmp.Cost()).
				Msg("thumbnail generated")
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 320, "max pixel dimension of the thumbnail")
	return cmd
}
