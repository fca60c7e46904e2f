package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/esizzle/workman/internal/payload"
	"github.com/esizzle/workman/internal/pipeline"
	"github.com/esizzle/workman/internal/svcctx"
)

var (
	healthImageID int64
	healthStats   bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the worker's dependencies",
	Long: `Probe the database, the object store and the PDF engine. With
--image-id, also verify that document's row and working copy. With --stats,
print the processing queue breakdown.

Examples:
  workman health
  workman health --image-id 12345
  workman health --stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		svc, err := buildServices(ctx, logger, "")
		if err != nil {
			return err
		}
		defer svc.Meta.Close()
		ctx = svcctx.WithServices(ctx, svc)

		pipe := buildPipeline(ctx)
		result, err := pipe.Run(ctx, &payload.Invocation{
			Operation: payload.OpHealthCheck,
			ImageID:   healthImageID,
		})
		if err != nil {
			return err
		}

		health, ok := result.(*pipeline.HealthResult)
		if !ok {
			return fmt.Errorf("unexpected health result type %T", result)
		}
		if !healthStats {
			health.Stats = nil
		}

		out, err := yaml.Marshal(health)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, string(out))

		if health.Status == "unhealthy" {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Int64Var(&healthImageID, "image-id", 0, "also check one document's row and working copy")
	healthCmd.Flags().BoolVar(&healthStats, "stats", false, "include processing queue stats")

	rootCmd.AddCommand(healthCmd)
}
