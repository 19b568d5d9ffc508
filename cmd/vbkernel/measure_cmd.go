package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chromiumboot/vbkernel/measure"
)

func newMeasureCmd() *cobra.Command {
	var (
		recovery  bool
		developer bool
	)

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "print the boot-state digest for a given developer/recovery combination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := measure.BootStateDigest(developer, recovery)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", hex.EncodeToString(digest[:]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&recovery, "recovery", false, "recovery switch state")
	cmd.Flags().BoolVar(&developer, "developer", false, "developer switch state")

	return cmd
}
