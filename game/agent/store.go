package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrTableNotFound = errors.New("q-table not found")

// PolicyStore persists learned tables by name.
type PolicyStore interface {
	Save(name string, data QTableData) error
	Load(name string) (QTableData, error)
	Delete(name string) error
	ListAll() ([]string, error)
	Exists(name string) bool
}

// FileStore keeps one JSON file per table in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create policy directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the table to <dir>/<name>.json.
func (fs *FileStore) Save(name string, data QTableData) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal q-table: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp := fs.getFilePath(name) + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write q-table file: %w", err)
	}
	if err := os.Rename(tmp, fs.getFilePath(name)); err != nil {
		return fmt.Errorf("failed to replace q-table file: %w", err)
	}
	return nil
}

// Load reads a table back.
func (fs *FileStore) Load(name string) (QTableData, error) {
	filePath := fs.getFilePath(name)

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return QTableData{}, ErrTableNotFound
		}
		return QTableData{}, fmt.Errorf("failed to read q-table file: %w", err)
	}

	var data QTableData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return QTableData{}, fmt.Errorf("failed to unmarshal q-table: %w", err)
	}
	return data, nil
}

// Delete removes a table file.
func (fs *FileStore) Delete(name string) error {
	err := os.Remove(fs.getFilePath(name))
	if os.IsNotExist(err) {
		return ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete q-table file: %w", err)
	}
	return nil
}

// ListAll returns the names of all stored tables.
func (fs *FileStore) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

// Exists reports whether a table is stored under name.
func (fs *FileStore) Exists(name string) bool {
	_, err := os.Stat(fs.getFilePath(name))
	return err == nil
}

func (fs *FileStore) getFilePath(name string) string {
	return filepath.Join(fs.dir, name+".json")
}

// LoadInto fills table from store. A missing table is not an error.
func LoadInto(store PolicyStore, name string, table *QTable) error {
	data, err := store.Load(name)
	if errors.Is(err, ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	table.Import(data)
	return nil
}
