package state

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/xxh3"
)

// Fingerprint identifies the content of a file.
type Fingerprint struct {
	Checksum string
	Size     int64
	ModTime  time.Time
}

// FingerprintFile hashes path with xxh3. When prev describes a file of the
// same size and modification time its checksum is reused without reading
// the file again.
func FingerprintFile(path string, prev *Artifact) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	fp := Fingerprint{Size: info.Size(), ModTime: info.ModTime().UTC()}

	if prev != nil && prev.Size == fp.Size && prev.ModTime.Equal(fp.ModTime) && prev.Checksum != "" {
		fp.Checksum = prev.Checksum
		return fp, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	fp.Checksum = fmt.Sprintf("%016x", h.Sum64())
	return fp, nil
}
