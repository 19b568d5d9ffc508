package diskio

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/chromiumboot/vbkernel/bootctx"
)

// MemStore is an in-memory bootctx.NVStore and bootctx.SecureCounterStore,
// the test-grade and CLI-default collaborator for the NVRAM flags and
// secured kernel-version counter the spec treats as external state (spec
// §1 Non-goals: "NVRAM/TPM backing store implementation").
type MemStore struct {
	mu sync.Mutex

	flags   map[string]bool
	fwmp    map[string]bool
	version uint32
	devHash [32]byte
	devSet  bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		flags: map[string]bool{},
		fwmp:  map[string]bool{},
	}
}

func (s *MemStore) SetFlag(name string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = v
}

func (s *MemStore) Flag(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name], nil
}

func (s *MemStore) SetFWMPFlag(name string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwmp[name] = v
}

func (s *MemStore) FWMPFlag(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwmp[name], nil
}

func (s *MemStore) KernelVersion() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *MemStore) SetKernelVersion(v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < s.version {
		return fmt.Errorf("refusing to lower secured kernel version from 0x%08x to 0x%08x", s.version, v)
	}
	s.version = v
	return nil
}

func (s *MemStore) SetDevKeyHash(h [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devHash = h
	s.devSet = true
}

func (s *MemStore) DevKeyHash() ([32]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devHash, s.devSet, nil
}

var _ bootctx.NVStore = (*MemStore)(nil)
var _ bootctx.SecureCounterStore = (*MemStore)(nil)

// fileStoreDoc is the on-disk JSON form of a FileStore, persisted between
// CLI invocations so the secured kernel-version counter actually survives
// across `vbkernel scan` runs the way NVRAM would.
type fileStoreDoc struct {
	Flags   map[string]bool `json:"flags"`
	FWMP    map[string]bool `json:"fwmp"`
	Version uint32          `json:"kernel_version"`
	DevHash string          `json:"dev_key_hash,omitempty"`
}

// FileStore is a JSON-file-backed NVStore/SecureCounterStore for the CLI,
// where a MemStore's process lifetime is too short to exercise rollback
// behavior across separate invocations.
type FileStore struct {
	path string
	mem  *MemStore
}

func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemStore()}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("reading NV store %s: %w", path, err)
	}
	var doc fileStoreDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing NV store %s: %w", path, err)
	}
	if doc.Flags != nil {
		fs.mem.flags = doc.Flags
	}
	if doc.FWMP != nil {
		fs.mem.fwmp = doc.FWMP
	}
	fs.mem.version = doc.Version
	if doc.DevHash != "" {
		var h [32]byte
		if _, err := fmt.Sscanf(doc.DevHash, "%x", &h); err == nil {
			fs.mem.devHash = h
			fs.mem.devSet = true
		}
	}
	return fs, nil
}

func (f *FileStore) Flag(name string) (bool, error) { return f.mem.Flag(name) }
func (f *FileStore) FWMPFlag(name string) (bool, error) { return f.mem.FWMPFlag(name) }
func (f *FileStore) KernelVersion() (uint32, error) { return f.mem.KernelVersion() }
func (f *FileStore) DevKeyHash() ([32]byte, bool, error) { return f.mem.DevKeyHash() }

func (f *FileStore) SetKernelVersion(v uint32) error {
	if err := f.mem.SetKernelVersion(v); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) SetFlag(name string, v bool) error {
	f.mem.SetFlag(name, v)
	return f.save()
}

func (f *FileStore) save() error {
	doc := fileStoreDoc{
		Flags:   f.mem.flags,
		FWMP:    f.mem.fwmp,
		Version: f.mem.version,
	}
	if f.mem.devSet {
		doc.DevHash = fmt.Sprintf("%x", f.mem.devHash)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0o644)
}

var _ bootctx.NVStore = (*FileStore)(nil)
var _ bootctx.SecureCounterStore = (*FileStore)(nil)
