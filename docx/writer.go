package docx

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Save writes the package to w. Untouched parts are copied without recompression.
func (p *Parser) Save(w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, name := range p.order {
		if data, ok := p.modified[name]; ok {
			header := &zip.FileHeader{
				Name:     name,
				Method:   zip.Deflate,
				Modified: time.Now(),
			}
			if f, ok := p.files[name]; ok {
				header.Modified = f.Modified
			}
			fw, err := zw.CreateHeader(header)
			if err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			if _, err := fw.Write(data); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			continue
		}

		if err := zw.Copy(p.files[name]); err != nil {
			return fmt.Errorf("copying %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing ZIP archive: %w", err)
	}
	return nil
}

// SaveFile writes the package to path through a temporary file in the same directory
func (p *Parser) SaveFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".docx-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}

	if err := p.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming output file: %w", err)
	}
	return nil
}
