package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/diskio"
	"github.com/chromiumboot/vbkernel/scan"
)

func newScanCmd() *cobra.Command {
	var (
		recovery     bool
		developer    bool
		hwCrypto     bool
		noFailBoot   bool
		externalGPT  bool
		nvStorePath  string
		subkeyPath   string
		recKeyPath   string
	)

	cmd := &cobra.Command{
		Use:   "scan <disk-image>",
		Short: "scan a disk image for a verified kernel partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subkey, err := readFileOrEmpty(subkeyPath)
			if err != nil {
				return fmt.Errorf("reading subkey: %w", err)
			}
			recKey, err := readFileOrEmpty(recKeyPath)
			if err != nil {
				return fmt.Errorf("reading recovery key: %w", err)
			}

			store, err := diskio.OpenFileStore(nvStorePath)
			if err != nil {
				return fmt.Errorf("opening NV store: %w", err)
			}

			var flags bootctx.Flag
			if recovery {
				flags |= bootctx.FlagRecovery
			}
			if developer {
				flags |= bootctx.FlagDeveloper
			}
			if hwCrypto {
				flags |= bootctx.FlagHWCryptoAllowed
			}
			if noFailBoot {
				flags |= bootctx.FlagNoFailBoot
			}
			if externalGPT {
				flags |= bootctx.FlagExternalGPT
			}

			bc := bootctx.New(flags, store, store, scan.PrefixSize*2)
			bc.Log = bootLogger()
			start := time.Now()
			bc.Clock = func() int64 { return time.Since(start).Milliseconds() }

			device, err := diskio.OpenDevice(args[0])
			if err != nil {
				return fmt.Errorf("opening disk image: %w", err)
			}
			defer device.Close()

			streamer, err := diskio.NewMmapStreamer(device)
			if err != nil {
				return fmt.Errorf("mapping disk image: %w", err)
			}
			defer streamer.Close()

			table := diskio.NewGPTTable(device)

			var bootFlags scan.BootFlag
			if externalGPT {
				bootFlags |= scan.BootFlagExternalGPT
			}

			res, err := scan.LoadKernel(context.Background(), bc, scan.LoadParams{
				Disk:              device,
				BytesPerLBA:       device.BytesPerLBA,
				StreamingLBACount: device.LBACount(),
				GPTLBACount:       device.LBACount(),
				BootFlags:         bootFlags,
				FirmwareSubkey:    subkey,
				RecoveryKey:       recKey,
				Table:             table,
				Streamer:          streamer,
			})
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "partition:   %d (GUID %s)\n", res.PartitionNumber, hex.EncodeToString(res.PartitionGUID[:]))
			fmt.Fprintf(cmd.OutOrStdout(), "signed:      %v\n", res.KernelSigned)
			fmt.Fprintf(cmd.OutOrStdout(), "composite:   %d\n", res.CompositeVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "body size:   %s\n", humanize.Bytes(uint64(len(res.Body))))
			fmt.Fprintf(cmd.OutOrStdout(), "bootloader:  addr=0x%x size=%s\n", res.BootloaderAddress, humanize.Bytes(uint64(res.BootloaderSize)))
			for _, t := range res.Telemetry {
				fmt.Fprintf(cmd.OutOrStdout(), "  candidate %d: %s (%dms)\n", t.Index, t.Outcome, t.ElapsedMillis)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&recovery, "recovery", false, "boot in recovery mode")
	cmd.Flags().BoolVar(&developer, "developer", false, "boot in developer mode")
	cmd.Flags().BoolVar(&hwCrypto, "hw-crypto", false, "allow hardware crypto offload")
	cmd.Flags().BoolVar(&noFailBoot, "no-fail-boot", false, "skip marking the try counter (spec NOFAIL_BOOT)")
	cmd.Flags().BoolVar(&externalGPT, "external-gpt", false, "the partition table lives on external media")
	cmd.Flags().StringVar(&nvStorePath, "nv-store", "vbkernel-nvstore.json", "path to the persisted NV/secure-counter store")
	cmd.Flags().StringVar(&subkeyPath, "subkey", "", "path to the firmware subkey (packed key bytes)")
	cmd.Flags().StringVar(&recKeyPath, "recovery-key", "", "path to the recovery root key (packed key bytes)")

	return cmd
}
