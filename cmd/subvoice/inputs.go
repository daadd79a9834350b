package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"subvoice/internal/config"
)

// expandInputs resolves file and directory arguments into an ordered,
// de-duplicated list of absolute paths. Directories contribute their direct
// children that accept admits; explicit files must be admitted too.
func expandInputs(args []string, accept func(string) bool, kind string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("input %q not found", arg)
			}
			return nil, fmt.Errorf("inspect input %q: %w", arg, err)
		}
		if !info.IsDir() {
			if !accept(path) {
				return nil, fmt.Errorf("input %q is not a %s", arg, kind)
			}
			add(path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read directory %q: %w", arg, err)
		}
		var found []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			child := filepath.Join(path, entry.Name())
			if accept(child) {
				found = append(found, child)
			}
		}
		sort.Strings(found)
		for _, child := range found {
			add(child)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no " + kind + " inputs found")
	}
	return files, nil
}

func isSubtitleFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".srt")
}
