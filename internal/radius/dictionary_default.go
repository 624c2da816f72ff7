package radius

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed dictionary_default.txt
var defaultDictionarySource string

var (
	defaultDictOnce sync.Once
	defaultDict     *Dictionary
	defaultDictErr  error
)

// DefaultDictionary returns the module's embedded base dictionary,
// covering the RFC 2865/2866/2868/2869 attributes this package's codecs
// are specified against. It is parsed once and cached; the result is
// read-only and safe for concurrent use.
func DefaultDictionary() (*Dictionary, error) {
	defaultDictOnce.Do(func() {
		defaultDict, defaultDictErr = LoadDictionaryReader(strings.NewReader(defaultDictionarySource), "dictionary_default.txt")
		if defaultDictErr != nil {
			defaultDictErr = fmt.Errorf("load embedded default dictionary: %w", defaultDictErr)
		}
	})
	return defaultDict, defaultDictErr
}

// MustDefaultDictionary is DefaultDictionary, panicking on error. The
// embedded dictionary is fixed at build time, so a failure here means
// the module itself was built incorrectly, not a runtime condition.
func MustDefaultDictionary() *Dictionary {
	d, err := DefaultDictionary()
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDictionaryWithExtras builds a Dictionary from the embedded default
// plus any additional dictionary files (e.g. vendor dictionaries supplied
// via config), all parsed into a single builder pass so extra files may
// reference vendors the default defines (VENDOR/BEGIN-VENDOR). As with a
// single file's $INCLUDEs, a name or code collision between the default
// and an extra file is an error, not a silent override.
func LoadDictionaryWithExtras(extraPaths []string) (*Dictionary, error) {
	b := newDictBuilder()
	if err := b.loadReader(strings.NewReader(defaultDictionarySource), "dictionary_default.txt", "", make(map[string]bool)); err != nil {
		return nil, fmt.Errorf("load embedded default dictionary: %w", err)
	}
	for _, path := range extraPaths {
		if err := b.loadFile(path, make(map[string]bool)); err != nil {
			return nil, fmt.Errorf("load extra dictionary %s: %w", path, err)
		}
	}
	return b.build(), nil
}
