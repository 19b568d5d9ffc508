package fixture

import "fmt"

// KernelPartitionSpec is the full description of one synthetic kernel
// partition: its keyblock and preamble/body, assembled back to back the
// way the scanner expects to find them on disk (spec §3: keyblock,
// immediately followed by preamble, immediately followed by body).
type KernelPartitionSpec struct {
	Keyblock KeyblockSpec
	Preamble PreambleSpec
}

// BuildKernelPartition returns the full byte image of one kernel partition:
// keyblock || preamble || body(signed-data || signature).
func BuildKernelPartition(spec KernelPartitionSpec) ([]byte, error) {
	kb, err := BuildKeyblock(spec.Keyblock)
	if err != nil {
		return nil, fmt.Errorf("fixture: building keyblock: %w", err)
	}
	pre, body, err := spec.Preamble.Build()
	if err != nil {
		return nil, fmt.Errorf("fixture: building preamble: %w", err)
	}

	out := make([]byte, 0, len(kb)+len(pre)+len(body))
	out = append(out, kb...)
	out = append(out, pre...)
	out = append(out, body...)
	return out, nil
}
