package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chromiumboot/vbkernel/diskio/fixture"
)

func newMakeFixtureCmd() *cobra.Command {
	var (
		keyVersion    uint32
		kernelVersion uint32
		bodySize      int
	)

	cmd := &cobra.Command{
		Use:   "make-fixture <output-disk-image>",
		Short: "build a synthetic GPT disk image with one signed kernel partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subkey, err := fixture.NewKey(keyVersion)
			if err != nil {
				return err
			}
			dataKey, err := fixture.NewKey(keyVersion)
			if err != nil {
				return err
			}

			body := make([]byte, bodySize)
			if _, err := rand.Read(body); err != nil {
				return err
			}

			partition, err := fixture.BuildKernelPartition(fixture.KernelPartitionSpec{
				Keyblock: fixture.KeyblockSpec{
					Subkey:  subkey,
					DataKey: dataKey,
					Flags:   0x1 | 0x4, // developer-0 | recovery-0: normal-mode only
				},
				Preamble: fixture.PreambleSpec{
					DataKey:           dataKey,
					KernelVersion:     kernelVersion,
					BootloaderAddress: 0x200000,
					BootloaderSize:    4096,
					Body:              body,
				},
			})
			if err != nil {
				return fmt.Errorf("building kernel partition: %w", err)
			}

			startLBAs, err := fixture.BuildDiskImage(args[0], fixture.DiskImageSpec{KernelPartitions: [][]byte{partition}})
			if err != nil {
				return fmt.Errorf("building disk image: %w", err)
			}
			startLBA := startLBAs[0]

			subkeyPath := args[0] + ".subkey"
			if err := os.WriteFile(subkeyPath, subkey.Packed(), 0o644); err != nil {
				return fmt.Errorf("writing subkey: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s), kernel partition at LBA %d\n", args[0], humanize.Bytes(uint64(len(partition))), startLBA)
			fmt.Fprintf(cmd.OutOrStdout(), "subkey written to %s (hash %s)\n", subkeyPath, hex.EncodeToString(subkeyHash(subkey)))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&keyVersion, "key-version", 1, "key version to embed in the data key header")
	cmd.Flags().Uint32Var(&kernelVersion, "kernel-version", 1, "kernel version to embed in the preamble")
	cmd.Flags().IntVar(&bodySize, "body-size", 64*1024, "size in bytes of the synthetic kernel body")

	return cmd
}

func subkeyHash(k *fixture.Key) []byte {
	h := k.Hash()
	return h[:]
}
