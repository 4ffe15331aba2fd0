package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

func EnsureSubdDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// EnsureDir makes sure the given absolute or relative path exists as a
// directory, creating any missing parents. Unlike EnsureSubdDir it does
// not anchor the path to the current working directory.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
