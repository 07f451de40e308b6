package executor

import (
	"sort"
	"strings"
)

// BuildEnv layers the command environment: ambient first, then overrides,
// then key=baseDir last when baseDir is non-empty. Later layers win. An
// ambient key is never inherited, so without a base directory the variable
// is present only when an override sets it. The result is sorted by key.
func BuildEnv(ambient []string, overrides map[string]string, key, baseDir string) []string {
	vars := make(map[string]string, len(ambient)+len(overrides)+1)

	for _, kv := range ambient {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = value
	}
	delete(vars, key)

	for name, value := range overrides {
		vars[name] = value
	}

	if baseDir != "" {
		vars[key] = baseDir
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make([]string, 0, len(names))
	for _, name := range names {
		env = append(env, name+"="+vars[name])
	}
	return env
}
