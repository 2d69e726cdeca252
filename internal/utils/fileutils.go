package utils

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type FileUtils struct{}

func NewFileUtils() *FileUtils {
	return &FileUtils{}
}

func (fu *FileUtils) ExtractFileFromVSIX(vsixPath, filePath string) ([]byte, error) {
	reader, err := zip.OpenReader(vsixPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open .vsix file: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name == filePath {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
			}
			defer rc.Close()

			content, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
			}

			return content, nil
		}
	}

	return nil, fmt.Errorf("file %s not found in .vsix archive", filePath)
}

func (fu *FileUtils) SHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// EnsureDirectory creates dirPath and its parents. An existing file of that
// name is an error.
func (fu *FileUtils) EnsureDirectory(dirPath string) error {
	info, err := os.Stat(dirPath)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", dirPath)
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return err
	}
	return os.MkdirAll(dirPath, 0755)
}

func (fu *FileUtils) IsVSIXFile(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), VSIXExtension)
}

func (fu *FileUtils) FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}

// ListVSIX returns the base names of the .vsix files directly under dir.
func (fu *FileUtils) ListVSIX(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !fu.IsVSIXFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// SafeJoin joins name to dir and refuses names that escape dir.
func (fu *FileUtils) SafeJoin(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(dir, name), nil
}
