package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"BandWatch/internal/model"
)

// snapshot is the on-disk JSON layout.
type snapshot struct {
	Symbols map[string]*model.BandState `json:"symbols"`
	SavedAt time.Time                   `json:"saved_at"`
}

// FilePersister stores the symbol map as a single JSON snapshot file.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the snapshot. A missing file yields an empty map.
func (p *FilePersister) Load() (map[string]*model.BandState, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*model.BandState{}, nil
		}
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Symbols == nil {
		snap.Symbols = map[string]*model.BandState{}
	}
	return snap.Symbols, nil
}

// Save writes the full snapshot. Write-to-temp-then-rename keeps a crash
// mid-write from corrupting the previous snapshot.
func (p *FilePersister) Save(states map[string]*model.BandState) error {
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(snapshot{Symbols: states, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

func (p *FilePersister) Close() error { return nil }
