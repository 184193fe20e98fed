package dataset

import (
	"fmt"
	"os"
	"syscall"
)

// memoryMappedFile wraps a byte slice that's been memory-mapped to a file.
type memoryMappedFile struct {
	data []byte
}

// memoryMapFile maps a file into memory read-only.
// Caller must call unmap() when finished.
func memoryMapFile(fp string) (*memoryMappedFile, error) {
	f, err := os.Open(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", fp, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", fp, err)
	}

	size := info.Size()
	if size == 0 {
		return &memoryMappedFile{data: make([]byte, 0)}, nil
	} else if size != int64(int(size)) {
		return nil, fmt.Errorf("file %s has size %d which is too large", fp, size)
	}

	conn, err := f.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to get syscall connection for file %s: %w", fp, err)
	}

	var (
		data    []byte
		mmapErr error
	)
	if err := conn.Control(func(fd uintptr) {
		data, mmapErr = syscall.Mmap(int(fd), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	}); err != nil {
		return nil, fmt.Errorf("failed to mmap file %s: %w", fp, err)
	} else if mmapErr != nil {
		return nil, fmt.Errorf("failed to mmap file %s: %w", fp, mmapErr)
	}

	return &memoryMappedFile{data: data}, nil
}

func (mmf *memoryMappedFile) unmap() {
	if len(mmf.data) > 0 {
		syscall.Munmap(mmf.data)
	}
}
