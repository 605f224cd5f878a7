package conf

import (
	"os"
	"path/filepath"
)

// configPaths lists where a config file is looked up when no explicit path is set
func configPaths(explicit, name string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{
		filepath.Join("configs", name),
		filepath.Join("/etc/groupguard", name),
	}
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", name))
	}
	return paths
}

// readFirst returns the contents of the first readable path
func readFirst(paths []string) ([]byte, string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p
		}
	}
	return nil, ""
}
