//go:build !unix

package rawframe

import(
	"fmt"
	"os"
)

// No mmap here; the whole file is read into memory instead.
type mapping struct {
	data []byte
}

func mapFile(path string) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	return &mapping{data: data}, nil
}

func (m *mapping)Close() error {
	m.data = nil
	return nil
}
