//go:build unix

package rawframe

import(
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// A mapping is a read-only memory map of a whole raw file.
type mapping struct {
	data []byte
}

func mapFile(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // the mapping outlives the descriptor

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if int64(int(fi.Size())) != fi.Size() {
		return nil, fmt.Errorf("file too large to map (%d bytes)", fi.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %v", err)
	}

	return &mapping{data: data}, nil
}

func (m *mapping)Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
