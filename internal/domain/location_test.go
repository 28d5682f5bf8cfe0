package domain

import (
	"errors"
	"testing"
)

func TestIsFileLocation(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"/home/user/project/main.go", true},
		{"relative/path.txt", true},
		{"file:///home/user/a.go", true},
		{"zip:///tmp/a.zip!/inner/file.txt", false},
		{"untitled://buffer-3", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFileLocation(tt.location); got != tt.want {
			t.Errorf("IsFileLocation(%q) = %v, want %v", tt.location, got, tt.want)
		}
	}
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"/home/user/a.go", "/home/user/a.go"},
		{"/home/user/../user/a.go", "/home/user/a.go"},
		{"file:///home/user/a.go", "/home/user/a.go"},
	}
	for _, tt := range tests {
		got, err := FilePath(tt.location)
		if err != nil {
			t.Errorf("FilePath(%q): %v", tt.location, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FilePath(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}

	for _, location := range []string{"", "zip:///a.zip!/x", "untitled://b", "file://"} {
		if _, err := FilePath(location); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("FilePath(%q) err = %v, want ErrInvalidLocation", location, err)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"/home/user/project/main.go", "main.go"},
		{"/home/user/project", "project"},
		{"zip:///tmp/a.zip!/inner/file.txt", "file.txt"},
		{"untitled://buffer-3", "buffer-3"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.location); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}
