package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/diskio"
	"github.com/chromiumboot/vbkernel/policy"
	"github.com/chromiumboot/vbkernel/verify"
)

func newVerifyCmd() *cobra.Command {
	var (
		recovery  bool
		developer bool
	)

	cmd := &cobra.Command{
		Use:   "verify <vblock-file> <subkey-file>",
		Short: "verify a standalone keyblock+preamble file against a subkey",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading vblock: %w", err)
			}
			subkey, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading subkey: %w", err)
			}

			var flags bootctx.Flag
			if recovery {
				flags |= bootctx.FlagRecovery
			}
			if developer {
				flags |= bootctx.FlagDeveloper
			}
			store := diskio.NewMemStore()
			bc := bootctx.New(flags, store, store, 1<<20)
			bc.Log = bootLogger()

			mode := policy.Resolve(bc)
			requireSigned := policy.RequireSigned(bc)

			kbRes, err := verify.KeyblockVerify(bc, buf, subkey, mode, requireSigned)
			if err != nil {
				return fmt.Errorf("keyblock verification failed: %w", err)
			}
			preRes, err := verify.PreambleVerify(bc, buf[kbRes.Header.KeyblockSize:], kbRes.DataKey, kbRes.DataKey.Header.KeyVersion, mode, requireSigned)
			if err != nil {
				return fmt.Errorf("preamble verification failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mode:       %s\n", mode)
			fmt.Fprintf(cmd.OutOrStdout(), "signed:     %v\n", kbRes.Signed)
			fmt.Fprintf(cmd.OutOrStdout(), "composite:  %d\n", preRes.Composite)
			fmt.Fprintf(cmd.OutOrStdout(), "bootloader: addr=0x%x size=%d\n", preRes.Header.BootloaderAddress, preRes.Header.BootloaderSize)
			return nil
		},
	}

	cmd.Flags().BoolVar(&recovery, "recovery", false, "verify as if booting in recovery mode")
	cmd.Flags().BoolVar(&developer, "developer", false, "verify as if booting in developer mode")

	return cmd
}
