package definitions

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileExtension is the suffix of every resource definition file.
const FileExtension = ".xml"

// NameToPath maps a dotted resource name to its slash-separated path relative
// to the resources directory: "sales.customer.Orders" -> "sales/customer/Orders.xml".
func NameToPath(name string) string {
	return strings.ReplaceAll(name, ".", "/") + FileExtension
}

// PathToName is the inverse of NameToPath.
func PathToName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), FileExtension)
	return strings.ReplaceAll(rel, "/", ".")
}

// ListNames returns the names of all definitions under baseDir. Files of a
// directory are listed before its subdirectories are descended into.
func ListNames(baseDir string) ([]string, error) {
	var names []string
	if err := listNames(&names, baseDir, ""); err != nil {
		return nil, err
	}
	return names, nil
}

func listNames(names *[]string, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != FileExtension {
			continue
		}
		base := strings.TrimSuffix(e.Name(), FileExtension)
		if base == "" {
			continue
		}
		*names = append(*names, prefix+base)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := listNames(names, filepath.Join(dir, e.Name()), prefix+e.Name()+"."); err != nil {
			return err
		}
	}
	return nil
}
