package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/esizzle/workman/internal/payload"
	"github.com/esizzle/workman/internal/pipeline"
	"github.com/esizzle/workman/internal/svcctx"
)

var (
	runPayload string
	runFile    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one invocation",
	Long: `Run one invocation against one document. The payload is read from
--payload, --file, or stdin, in that order of precedence. The response JSON
is written to stdout; logs go to stderr.

Examples:
  workman run --payload '{"operation":"process_manipulations","imageId":12345}'
  workman run --file invocation.json
  echo '{"operation":"health_check","imageId":0}' | workman run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		raw, err := readPayload()
		if err != nil {
			return err
		}

		inv, err := payload.Parse(raw)
		if err != nil {
			resp := payload.Failure(400, 0, "", err.Error(), 0)
			fmt.Fprintln(os.Stdout, string(resp.JSON()))
			return err
		}

		svc, err := buildServices(ctx, logger, inv.ProgressCallbackURL)
		if err != nil {
			return err
		}
		defer svc.Meta.Close()
		ctx = svcctx.WithServices(ctx, svc)

		pipe := buildPipeline(ctx)
		start := time.Now()
		result, err := pipe.Run(ctx, inv)
		elapsed := time.Since(start).Seconds()

		var resp payload.Response
		if err != nil {
			resp = payload.Failure(pipeline.StatusCodeFor(err), inv.ImageID, inv.SessionID, err.Error(), elapsed)
		} else {
			resp = payload.Success(inv.ImageID, inv.SessionID, result, elapsed)
		}
		fmt.Fprintln(os.Stdout, string(resp.JSON()))
		return err
	},
}

func readPayload() ([]byte, error) {
	switch {
	case runPayload != "":
		return []byte(runPayload), nil
	case runFile != "":
		raw, err := os.ReadFile(runFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return raw, nil
	default:
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return raw, nil
	}
}

func init() {
	runCmd.Flags().StringVar(&runPayload, "payload", "", "inline JSON payload")
	runCmd.Flags().StringVar(&runFile, "file", "", "path to a JSON payload file")

	rootCmd.AddCommand(runCmd)
}
