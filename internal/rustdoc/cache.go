package rustdoc

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/jcdickinson/eguinet/internal/config"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

const cacheSuffix = ".json.zst"

var crateNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CrateRef names one published crate build.
type CrateRef struct {
	Name    string
	Version string
}

// ParseCrateRef reads crate[@version]. The version defaults to "latest",
// which docs.rs resolves by redirect.
func ParseCrateRef(s string) (CrateRef, error) {
	name, version, _ := strings.Cut(s, "@")
	if version == "" {
		version = "latest"
	}
	if !crateNamePattern.MatchString(name) || strings.ContainsAny(version, `/\@`) {
		return CrateRef{}, bgerr.New(bgerr.StageLoad, bgerr.KindInvalidConfig).
			Subject(s).Detail("expected crate[@version]").Build()
	}
	return CrateRef{Name: name, Version: version}, nil
}

func (r CrateRef) String() string {
	return r.Name + "@" + r.Version
}

func (r CrateRef) cachePath() string {
	return filepath.Join(config.JSONCacheDir(), r.String()+cacheSuffix)
}

// SaveCrateCache stores rustdoc JSON zstd-compressed. The file is written
// beside its final name and renamed, so readers never see a partial file.
func SaveCrateCache(ref CrateRef, data []byte) error {
	path := ref.cachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return bgerr.IO(bgerr.StageLoad, filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+ref.Name+"-*")
	if err != nil {
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		tmp.Close()
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		tmp.Close()
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	if err := tmp.Close(); err != nil {
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return bgerr.IO(bgerr.StageLoad, path, err)
	}
	return nil
}

// LoadCrateCache decodes a cached crate.
func LoadCrateCache(ref CrateRef) (*Crate, error) {
	return LoadFile(ref.cachePath())
}

// HasCrateCache reports whether ref is cached.
func HasCrateCache(ref CrateRef) bool {
	_, err := os.Stat(ref.cachePath())
	return err == nil
}

// CachedCrates lists the cached crates ordered by name, then version.
func CachedCrates() ([]CrateRef, error) {
	dir := config.JSONCacheDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, bgerr.IO(bgerr.StageLoad, dir, err)
	}

	var refs []CrateRef
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), cacheSuffix)
		if !ok || e.IsDir() {
			continue
		}
		ref, err := ParseCrateRef(base)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].Version < refs[j].Version
	})
	return refs, nil
}
