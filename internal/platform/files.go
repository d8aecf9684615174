package platform

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Well-known user directories tried by SelectOutputDirectory
const (
	DownloadsDirName = "Downloads"
	DesktopDirName   = "Desktop"
)

// URL list file syntax
const (
	CommentPrefix = "#"
)

// MaxNameDifference is how many bytes a truncated file name may differ by
// and still count as the same file.
const MaxNameDifference = 10

// writeProbeName is created and removed to check a directory is writable
const writeProbeName = ".yt-audio-write-probe"

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// SelectOutputDirectory picks where audio files are written. A non-empty
// preferred directory is created and used as is. Otherwise ~/Downloads
// (created if missing), ~/Desktop and the home directory are tried in order
// and the first writable one wins.
func SelectOutputDirectory(preferred string) (string, error) {
	if preferred != "" {
		if err := CreateDirectoryIfNotExists(preferred); err != nil {
			return "", fmt.Errorf("failed to create output directory %s: %w", preferred, err)
		}
		return preferred, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return selectFrom(homeDir)
}

func selectFrom(homeDir string) (string, error) {
	downloads := filepath.Join(homeDir, DownloadsDirName)
	if err := CreateDirectoryIfNotExists(downloads); err == nil && isWritable(downloads) {
		return downloads, nil
	}

	for _, dir := range []string{filepath.Join(homeDir, DesktopDirName), homeDir} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() && isWritable(dir) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no writable output directory under %s", homeDir)
}

// isWritable reports whether a file can be created in dir
func isWritable(dir string) bool {
	probe := filepath.Join(dir, writeProbeName)
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// ReadURLFile reads a newline-delimited URL list. Blank lines and lines
// starting with # are skipped; surrounding whitespace is trimmed.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url file: %w", err)
	}
	return urls, nil
}

// FindFileWithFallback returns dir/name if it exists, otherwise a file in dir
// with the same extension and a similar name. yt-dlp sanitizes titles, so the
// file on disk does not always match title.ext. name is not split on path
// separators because titles may contain slashes.
func FindFileWithFallback(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name is empty")
	}

	filePath := filepath.Join(dir, name)
	if !strings.ContainsAny(name, `/\`) {
		if _, err := os.Stat(filePath); err == nil {
			return filePath, nil
		}
	}

	originalExt := filepath.Ext(name)
	baseName := strings.TrimSuffix(name, originalExt)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName := entry.Name()
		entryExt := filepath.Ext(entryName)
		entryBase := strings.TrimSuffix(entryName, entryExt)

		if entryExt == originalExt && isSimilarFileName(entryBase, baseName) {
			candidates = append(candidates, filepath.Join(dir, entryName))
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("file not found: %s", filePath)
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

// isSimilarFileName checks if two file names are similar enough to be considered the same file
func isSimilarFileName(name1, name2 string) bool {
	clean1 := strings.TrimSpace(name1)
	clean2 := strings.TrimSpace(name2)

	if clean1 == clean2 {
		return true
	}
	if clean1 == "" || clean2 == "" {
		return false
	}

	// yt-dlp replaces characters that are unsafe in file names
	if sanitizeName(clean1) == sanitizeName(clean2) {
		return true
	}

	// truncated names
	if strings.Contains(clean1, clean2) || strings.Contains(clean2, clean1) {
		diff := len(clean1) - len(clean2)
		if diff < 0 {
			diff = -diff
		}
		return diff <= MaxNameDifference
	}
	return false
}

var unsafeNameReplacer = strings.NewReplacer(
	"/", "", "\\", "", ":", "", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	"⧸", "", "⧹", "", "：", "", "＊", "", "？", "", "＂", "", "＜", "", "＞", "", "｜", "",
	"-", "", "_", "", " ", "",
)

func sanitizeName(name string) string {
	return strings.ToLower(unsafeNameReplacer.Replace(name))
}
