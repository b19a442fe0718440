package prototype

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hunterwarburton/medsage/internal/core"
)

// FileStore keeps one little-endian binary file per (modality, model) pair.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func storeKey(modality core.Modality, modelID string) string {
	h := sha1.Sum([]byte(string(modality) + "|" + modelID))
	return hex.EncodeToString(h[:])
}

func (s *FileStore) path(modality core.Modality, modelID string) string {
	return filepath.Join(s.dir, string(modality)+"-"+storeKey(modality, modelID)+".bin")
}

// Load reads a stored set. A missing file is not an error.
func (s *FileStore) Load(_ context.Context, modality core.Modality, modelID string) ([]core.ConditionPrototype, bool, error) {
	path := s.path(modality, modelID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, false, fmt.Errorf("prototype file broken: %s", path)
	}
	protos := make([]core.ConditionPrototype, 0, count)
	for i := uint32(0); i < count; i++ {
		var labelLen uint16
		if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
			return nil, false, fmt.Errorf("prototype file truncated: %s", path)
		}
		label := make([]byte, labelLen)
		if _, err := io.ReadFull(r, label); err != nil {
			return nil, false, fmt.Errorf("prototype file truncated: %s", path)
		}
		var dim uint32
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return nil, false, fmt.Errorf("prototype file truncated: %s", path)
		}
		if int(dim)*4 > r.Len() {
			return nil, false, fmt.Errorf("prototype file truncated: %s", path)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, false, err
		}
		protos = append(protos, core.ConditionPrototype{Label: string(label), Embedding: vec, Modality: modality})
	}
	return protos, true, nil
}

// Save writes the set, replacing any previous file.
func (s *FileStore) Save(_ context.Context, modality core.Modality, modelID string, prototypes []core.ConditionPrototype) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(prototypes)))
	for _, p := range prototypes {
		_ = binary.Write(buf, binary.LittleEndian, uint16(len(p.Label)))
		buf.WriteString(p.Label)
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(p.Embedding)))
		if err := binary.Write(buf, binary.LittleEndian, p.Embedding); err != nil {
			return err
		}
	}
	tmp := s.path(modality, modelID) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(modality, modelID))
}
