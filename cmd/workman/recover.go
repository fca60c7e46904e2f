package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/svcctx"
)

var recoverImageID int64

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reset a stuck document for re-queueing",
	Long: `Reset a document whose run was interrupted: drops its pending change
markers, resets redaction applied flags, and puts the row back in
NeedsImageManipulation so the invoker can replay it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		if recoverImageID <= 0 {
			return fmt.Errorf("--image-id is required")
		}

		svc, err := buildServices(ctx, logger, "")
		if err != nil {
			return err
		}
		defer svc.Meta.Close()
		ctx = svcctx.WithServices(ctx, svc)

		store := svcctx.MetaFrom(ctx)
		if err := store.ClearManipulations(ctx, recoverImageID); err != nil {
			return err
		}
		if err := store.SetStatus(ctx, recoverImageID, meta.StatusNeedsImageManipulation); err != nil {
			return err
		}

		fmt.Printf("document %d reset for re-queueing\n", recoverImageID)
		return nil
	},
}

func init() {
	recoverCmd.Flags().Int64Var(&recoverImageID, "image-id", 0, "document to reset")

	rootCmd.AddCommand(recoverCmd)
}
