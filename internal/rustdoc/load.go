package rustdoc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// docsRSPrefix marks an input fetched from docs.rs, e.g. "docs.rs:egui@0.31.1".
const docsRSPrefix = "docs.rs:"

// Load decodes rustdoc JSON.
func Load(r io.Reader) (*Crate, error) {
	var crate Crate
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&crate); err != nil {
		return nil, err
	}
	if crate.Index == nil {
		return nil, fmt.Errorf("missing index")
	}
	if crate.Paths == nil {
		crate.Paths = make(map[Id]Summary)
	}
	for id, item := range crate.Index {
		if item == nil {
			return nil, fmt.Errorf("null item for id %d", id)
		}
		if item.ID != id {
			return nil, fmt.Errorf("item id %d stored under key %d", item.ID, id)
		}
	}
	return &crate, nil
}

// LoadFile reads rustdoc JSON from disk. Files ending in .zst are
// zstd-compressed, the format docs.rs serves.
func LoadFile(path string) (*Crate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bgerr.IO(bgerr.StageLoad, path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, bgerr.Parse(path, fmt.Errorf("creating zstd reader: %w", err))
		}
		defer zr.Close()
		r = zr
	}

	crate, err := Load(r)
	if err != nil {
		return nil, bgerr.Parse(path, err)
	}
	Logger().Debug("loaded rustdoc JSON",
		zap.String("path", path),
		zap.Int("items", len(crate.Index)),
		zap.Int("format_version", crate.FormatVersion))
	return crate, nil
}

// Open loads an input spec: a file path or a docs.rs:<crate>@<version>
// reference, which is served from the local cache when present.
func Open(ctx context.Context, spec string) (*Crate, error) {
	if !strings.HasPrefix(spec, docsRSPrefix) {
		return LoadFile(spec)
	}

	ref, err := ParseCrateRef(strings.TrimPrefix(spec, docsRSPrefix))
	if err != nil {
		return nil, err
	}
	if HasCrateCache(ref) {
		return LoadCrateCache(ref)
	}

	data, err := FetchRustdocJSON(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := SaveCrateCache(ref, data); err != nil {
		Logger().Warn("failed to cache rustdoc JSON", zap.Stringer("crate", ref), zap.Error(err))
	}
	crate, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, bgerr.Parse(spec, err)
	}
	return crate, nil
}

// LoadFiles decodes every input concurrently and merges them in input order
// into the first. The merge is sequential so identifier assignment does not
// depend on decode timing.
func LoadFiles(ctx context.Context, specs []string) (*Crate, error) {
	if len(specs) == 0 {
		return nil, bgerr.New(bgerr.StageLoad, bgerr.KindInvalidConfig).Detail("no inputs").Build()
	}

	crates := make([]*Crate, len(specs))
	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			c, err := Open(ctx, spec)
			if err != nil {
				return err
			}
			crates[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	root := crates[0]
	for i, c := range crates[1:] {
		remap, err := Merge(root, c)
		if err != nil {
			return nil, fmt.Errorf("merging %s: %w", specs[i+1], err)
		}
		Logger().Debug("merged crate",
			zap.String("input", specs[i+1]),
			zap.Int("remapped", len(remap)))
	}
	return root, nil
}
