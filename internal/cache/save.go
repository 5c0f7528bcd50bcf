package cache

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escape(s string) string {
	return escaper.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the cache as a sequence of declarative records. Keys of
// unordered maps are sorted so that the output is byte-stable.
func (c *MeiqueCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder

	for _, name := range sortedKeys(c.userOptions) {
		if name == "" {
			continue // the default package doesn't need to be saved
		}
		fmt.Fprintf(&sb, "UserOption {\n"+
			"    name = \"%s\",\n"+
			"    value = \"%s\"\n"+
			"}\n\n", escape(name), escape(c.userOptions[name]))
	}

	sb.WriteString("Config {\n")
	fmt.Fprintf(&sb, "    buildType = \"%s\",\n", c.buildType)
	fmt.Fprintf(&sb, "    compiler = \"%s\",\n", escape(c.compilerID))
	fmt.Fprintf(&sb, "    sourceDir = \"%s\",\n", escape(c.sourceDir))
	if c.installPrefix != "" {
		fmt.Fprintf(&sb, "    installPrefix = \"%s\",\n", escape(c.installPrefix))
	}
	sb.WriteString("}\n\n")

	sb.WriteString("Scopes {\n")
	for _, scope := range c.scopes {
		fmt.Fprintf(&sb, "    \"%s\",\n", escape(scope))
	}
	sb.WriteString("}\n\n")

	for _, name := range sortedKeys(c.packages) {
		attrs := c.packages[name]
		sb.WriteString("Package {\n")
		fmt.Fprintf(&sb, "    name = \"%s\",\n", escape(name))
		for _, key := range sortedKeys(attrs) {
			if key == "name" {
				continue
			}
			fmt.Fprintf(&sb, "    %s = \"%s\",\n", key, escape(attrs[key]))
		}
		sb.WriteString("}\n\n")
	}

	for _, file := range sortedKeys(c.fileHashes) {
		fmt.Fprintf(&sb, "FileHash {\n"+
			"    file = \"%s\",\n"+
			"    hash = \"%s\"\n"+
			"}\n\n", escape(file), escape(c.fileHashes[file]))
	}

	for _, target := range sortedKeys(c.targetHashes) {
		fmt.Fprintf(&sb, "TargetHash {\n"+
			"    target = \"%s\",\n"+
			"    hash = \"%s\"\n"+
			"}\n\n", escape(target), escape(c.targetHashes[target]))
	}

	if err := os.WriteFile(c.filePath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("can't open %s for write: %w", c.filePath, err)
	}
	return nil
}
