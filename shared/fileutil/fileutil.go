// Package fileutil defines utilities for common filesystem operations with
// standardized permissions for the oracle's data directories and key files.
package fileutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	dirPermissions  = os.FileMode(0700)
	filePermissions = os.FileMode(0600)
)

// ExpandPath given a string which may be a relative path.
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// 3. cleans the path, e.g. /a/b/../c -> /a/c
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Abs(path.Clean(os.ExpandEnv(p)))
}

// HomeDir for a user.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// MkdirAll takes in a path, expands it if necessary, and creates the
// directory accordingly with standardized project permissions. If a
// directory already exists at the path, the permissions are verified
// instead.
func MkdirAll(dirPath string) error {
	exists, err := HasDir(dirPath)
	if err != nil {
		return err
	}
	if exists {
		info, err := os.Stat(dirPath)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != dirPermissions {
			return errors.New("dir already exists without proper 0700 permissions")
		}
	}
	return os.MkdirAll(dirPath, dirPermissions)
}

// WriteFile is the standardized entrypoint for writing data files in the
// oracle repo, enforcing owner-only permissions.
func WriteFile(file string, data []byte) error {
	expanded, err := ExpandPath(file)
	if err != nil {
		return err
	}
	if FileExists(expanded) {
		info, err := os.Stat(expanded)
		if err != nil {
			return err
		}
		if info.Mode() != filePermissions {
			return errors.Errorf("file already exists without proper 0600 permissions: %s", expanded)
		}
	}
	return os.WriteFile(expanded, data, filePermissions)
}

// HasDir checks if a directory indeed exists at the specified path.
func HasDir(dirPath string) (bool, error) {
	fullPath, err := ExpandPath(dirPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if info == nil {
		return false, err
	}
	return info.IsDir(), err
}

// FileExists returns true if a file is not a directory and exists at the
// specified path.
func FileExists(filename string) bool {
	filePath, err := ExpandPath(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false
	}
	return info != nil && !info.IsDir()
}
