package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the on-disk layout of a tabular file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// HasSheets reports whether the format is a workbook with named sheets.
func (f Format) HasSheets() bool {
	return f == FormatXLSX || f == FormatXLS
}

// extensionFormats maps lowercase file extensions to formats.
var extensionFormats = map[string]Format{
	".csv":  FormatCSV,
	".txt":  FormatCSV,
	".tsv":  FormatTSV,
	".tab":  FormatTSV,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".xls":  FormatXLS,
}

// mimeFormats maps sniffed MIME types to formats, checked in order.
var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FormatXLSX},
	{"application/vnd.ms-excel", FormatXLS},
	{"text/tab-separated-values", FormatTSV},
	{"text/csv", FormatCSV},
	{"text/plain", FormatCSV},
}

// FileHandle identifies a file to import. It is immutable once opened.
type FileHandle struct {
	Path   string
	Name   string // Display name, usually the uploaded file name
	Format Format
	Size   int64

	temporary bool
}

// Open stats the file at path and detects its format.
// The extension decides when it is recognised; otherwise the content is sniffed.
func Open(path string) (*FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadableFile, path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	return &FileHandle{
		Path:   path,
		Name:   filepath.Base(path),
		Format: format,
		Size:   info.Size(),
	}, nil
}

// SpoolPrefix prefixes the names of files created by Spool.
const SpoolPrefix = "import-"

// Spool copies r into a temporary file under dir and opens it.
// name is the original file name; its extension drives format detection.
// Call Remove when the handle is no longer needed.
func Spool(name string, r io.Reader, dir string) (*FileHandle, error) {
	ext := strings.ToLower(filepath.Ext(name))
	tmp, err := os.CreateTemp(dir, SpoolPrefix+"*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool %s: %w", name, err)
	}

	fh, err := Open(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	fh.Name = filepath.Base(name)
	fh.temporary = true
	return fh, nil
}

// Remove deletes the underlying file if it was created by Spool.
// It is a no-op for handles returned by Open.
func (fh *FileHandle) Remove() error {
	if fh == nil || !fh.temporary {
		return nil
	}
	if err := os.Remove(fh.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DetectFormat returns the format of the file at path.
func DetectFormat(path string) (Format, error) {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	for _, m := range mimeFormats {
		if mt.Is(m.mime) {
			return m.format, nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filepath.Base(path), mt.String())
}
