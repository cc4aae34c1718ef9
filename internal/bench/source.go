package bench

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"
)

// SampleSource yields one raw event payload per call along with the
// time spent retrieving it.
type SampleSource interface {
	Next(ctx context.Context) (payload []byte, readTime time.Duration, err error)
}

// DirSource cycles through the *.json files of a tree in lexical
// order, re-reading the file on every call so each iteration pays the
// real retrieval cost.
type DirSource struct {
	fsys  fs.FS
	paths []string
	next  int
}

func NewDirSource(fsys fs.FS) (*DirSource, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && path.Ext(p) == ".json" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no sample files found")
	}
	return &DirSource{fsys: fsys, paths: paths}, nil
}

func (s *DirSource) Len() int { return len(s.paths) }

func (s *DirSource) Next(ctx context.Context) ([]byte, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	p := s.paths[s.next%len(s.paths)]
	s.next++

	start := time.Now()
	raw, err := fs.ReadFile(s.fsys, p)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("read sample %s: %w", p, err)
	}
	return raw, elapsed, nil
}
