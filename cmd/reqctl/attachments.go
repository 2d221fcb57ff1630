package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/reqflow/internal/attachments"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

func newAttachmentsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Maintain the attachment store",
	}
	cmd.AddCommand(newAttachmentsPruneCommand(ctx))
	return cmd
}

func newAttachmentsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete blobs no requisition refers to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if olderThan < cfg.SignatureTTL {
				return fmt.Errorf("--older-than must be at least SIGNATURE_TTL (%s) so pending signatures keep their uploads", cfg.SignatureTTL)
			}
			stores, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			blobs, err := attachments.New(cfg.AttachmentDir)
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-olderThan)

			reqs, err := stores.Requisitions.List(cmd.Context(), requisition.Filter{})
			if err != nil {
				return err
			}
			referenced := make(map[string]bool)
			for _, req := range reqs {
				for _, ref := range req.BlobRefs() {
					referenced[ref] = true
				}
			}
			removed, err := blobs.Prune(cmd.Context(), func(ref string) bool { return referenced[ref] }, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d unreferenced blobs\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only remove blobs last written before this long ago")
	return cmd
}
