package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timmy/portdesk/internal/source/loader"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path> <key>",
	Short: "Copy a document into the configured bucket for later ingestion",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().Bool("force", false, "Overwrite an existing object")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	local, key := args[0], args[1]
	force, _ := cmd.Flags().GetBool("force")

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if e.store == nil {
		return loader.ErrStorageUnavailable
	}

	if eb, ok := e.store.(interface{ EnsureBucket(context.Context) error }); ok {
		if err := eb.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	if !force {
		exists, err := e.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return errors.New("object already exists, use --force to overwrite")
		}
	}

	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(local))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := e.store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s\n", e.store.Bucket(), key)
	return nil
}
