package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCgroupPath(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"v2", "0::/user.slice/user-1000.slice/session-2.scope\n", "/user.slice/user-1000.slice/session-2.scope"},
		{"hybrid_prefers_v2", "12:cpu,cpuacct:/legacy\n0::/unified\n", "/unified"},
		{"v1_only", "4:memory:/docker/abc\n3:cpu:/docker/abc\n", "/docker/abc"},
		{"empty", "", ""},
		{"garbage", "not a cgroup line\n", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CgroupPath(c.content); got != c.want {
				t.Fatalf("CgroupPath = %q, want %q", got, c.want)
			}
		})
	}
}

func TestReadHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadFileLines(path)
	if err != nil || len(lines) != 2 || lines[1] != "b" {
		t.Fatalf("ReadFileLines = %v, %v", lines, err)
	}
	s, err := ReadFileString(path)
	if err != nil || s != "a\nb\n" {
		t.Fatalf("ReadFileString = %q, %v", s, err)
	}
	if ParseInt(" 42\n") != 42 || ParseInt("x") != 0 {
		t.Fatal("ParseInt")
	}
}
