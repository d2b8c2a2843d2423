package enumerate

import (
	"errors"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// Lock pins canonical keys to ordinals across regenerations. A key that
// leaves the enumeration keeps its entry and its ordinal stays reserved.
type Lock struct {
	Ordinals map[string]uint32 `yaml:"ordinals"`
}

// LoadLock reads a lock file. A missing file yields a nil lock.
func LoadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, bgerr.IO(bgerr.StageEnumerate, path, err)
	}
	return ParseLock(data)
}

// ParseLock decodes and validates lock YAML. Two keys sharing an ordinal
// is an error.
func ParseLock(data []byte) (*Lock, error) {
	var l Lock
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, bgerr.New(bgerr.StageEnumerate, bgerr.KindParse).Subject("ordinal lock").Cause(err).Build()
	}
	if l.Ordinals == nil {
		l.Ordinals = map[string]uint32{}
	}
	owner := make(map[uint32]string, len(l.Ordinals))
	for _, key := range l.Keys() {
		o := l.Ordinals[key]
		if prev, dup := owner[o]; dup {
			return nil, bgerr.New(bgerr.StageEnumerate, bgerr.KindInvalidConfig).
				Subject("ordinal lock").
				Detail("ordinal %d is assigned to both %s and %s", o, prev, key).
				Build()
		}
		owner[o] = key
	}
	return &l, nil
}

// Keys returns the locked keys sorted.
func (l *Lock) Keys() []string {
	keys := make([]string, 0, len(l.Ordinals))
	for k := range l.Ordinals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Next returns the first ordinal after every locked one.
func (l *Lock) Next() uint32 {
	var next uint32
	for _, o := range l.Ordinals {
		if o+1 > next {
			next = o + 1
		}
	}
	return next
}

// Marshal renders the lock. Keys are emitted sorted, so regenerating with
// no changes produces identical bytes.
func (l *Lock) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(l)
	if err != nil {
		return nil, bgerr.New(bgerr.StageEnumerate, bgerr.KindEncode).Subject("ordinal lock").Cause(err).Build()
	}
	return append([]byte("# Generated by eguinet. Ordinals are never reused; edit with care.\n"), data...), nil
}
