package ui

import (
	"os"
	"sync"

	"threadlens/pkg/permalink"
)

// FileDocument is a decor.Document backed by a file on disk. The watcher
// triggers Reload on change; InsertAbove writes through to the file so
// the resulting watch event drives the rescan.
type FileDocument struct {
	path string

	mu      sync.Mutex
	text    string
	version int
}

// OpenFileDocument reads path into a new document.
func OpenFileDocument(path string) (*FileDocument, error) {
	d := &FileDocument{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *FileDocument) ID() string {
	return d.path
}

func (d *FileDocument) Path() string {
	return d.path
}

func (d *FileDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *FileDocument) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Reload reads the file again and bumps the version when the contents
// changed. The first load always counts as a change.
func (d *FileDocument) Reload() error {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if string(raw) != d.text || d.version == 0 {
		d.text = string(raw)
		d.version++
	}
	return nil
}

// InsertAbove writes a newline-terminated block into the file above the
// given 0-based line.
func (d *FileDocument) InsertAbove(line int, block string) error {
	d.mu.Lock()
	text := d.text
	d.mu.Unlock()

	offset := permalink.NewIndex(text).LineStart(line)
	updated := text[:offset] + block + text[offset:]

	mode := os.FileMode(0o644)
	if info, err := os.Stat(d.path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(d.path, []byte(updated), mode); err != nil {
		return err
	}
	return d.Reload()
}
