package sandbox

import (
	"archive/tar"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// tarFiles packs in-memory files into an uncompressed tar stream, the format
// expected by the Docker API for build contexts and container copies.
// Names are sorted so archives are reproducible.
func tarFiles(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	tarWriter := tar.NewWriter(&buf)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		clean := path.Clean(name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, fmt.Errorf("unsafe path in archive: %s", name)
		}

		data := files[name]
		header := &tar.Header{
			Name:     clean,
			Mode:     FilePermission,
			Size:     int64(len(data)),
			ModTime:  time.Unix(0, 0),
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write tar header: %w", err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write tar content: %w", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
