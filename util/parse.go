package util

import (
	"os"
	"strconv"
	"strings"
)

// ReadFileString returns a small procfs file as a string.
func ReadFileString(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

// ReadFileLines returns the newline-separated lines of a procfs file,
// without a trailing empty line.
func ReadFileLines(path string) ([]string, error) {
	s, err := ReadFileString(path)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, "\n"), nil
}

// ParseInt is strconv.Atoi on the trimmed input, with 0 for garbage.
func ParseInt(s string) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return 0
}

// CgroupPath picks the cgroup a process belongs to from its
// /proc/<pid>/cgroup listing ("id:controllers:path" per line). The unified
// hierarchy entry wins; otherwise the first parseable entry is used.
func CgroupPath(content string) string {
	first := ""
	for line := range strings.Lines(content) {
		id, rest, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		_, path, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		if id == "0" {
			return path
		}
		if first == "" {
			first = path
		}
	}
	return first
}
