package script

import (
	"strings"

	"github.com/meique-build/meique/internal/osutil"
)

// pkg-config queries, one per recognized package attribute. Each
// attribute value is a single whitespace-joined string.
var pkgConfigQueries = []struct {
	attr  string
	flag  string
	strip string
}{
	{"includePaths", "--cflags-only-I", "-I"},
	{"cflags", "--cflags-only-other", ""},
	{"libraryPaths", "--libs-only-L", "-L"},
	{"linkLibraries", "--libs-only-l", "-l"},
	{"linkerFlags", "--libs-only-other", ""},
}

// pkgConfig probes a package through pkg-config, returning its
// attribute map and whether the package exists.
func pkgConfig(name string) (map[string]string, bool) {
	code, _, err := osutil.Exec("pkg-config", []string{"--exists", name}, nil)
	if err != nil || code != 0 {
		return nil, false
	}

	attrs := make(map[string]string, len(pkgConfigQueries))
	for _, q := range pkgConfigQueries {
		code, output, err := osutil.Exec("pkg-config", []string{q.flag, name}, nil)
		if err != nil || code != 0 {
			continue
		}
		fields := strings.Fields(output)
		if q.strip != "" {
			for i, f := range fields {
				fields[i] = strings.TrimPrefix(f, q.strip)
			}
		}
		attrs[q.attr] = strings.Join(fields, " ")
	}
	return attrs, true
}
