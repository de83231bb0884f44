package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/hallservo/internal/tuner"
)

type ExportData struct {
	Run     RunMetadata    `json:"run"`
	Samples []tuner.Sample `json:"samples"`
}

// Export writes a saved run with its samples as indented JSON.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: *meta, Samples: samples})
}

// ExportFile is Export to a file at path.
func (s *Store) ExportFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Export(file, runID); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
