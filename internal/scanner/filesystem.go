package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner interface for filesystem scanning
type FileSystemScanner struct{}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner() *FileSystemScanner {
	return &FileSystemScanner{}
}

// Scan recursively scans a directory for packages
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedPackage, error) {
	var packages []ScannedPackage

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		scanned, ok := s.detect(path)
		if ok {
			packages = append(packages, scanned)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	logrus.Infof("Found %d packages in %s", len(packages), dir)
	return packages, nil
}

// ScanPaths resolves a mix of package files and directories. Files are taken
// as given even when their type cannot be detected, so that the caller can
// apply an explicit source format; directories are walked and only
// recognised packages are kept.
func (s *FileSystemScanner) ScanPaths(ctx context.Context, paths []string) ([]ScannedPackage, error) {
	var packages []ScannedPackage
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := s.Scan(ctx, p)
			if err != nil {
				return nil, err
			}
			packages = append(packages, found...)
			continue
		}
		pkgType, err := s.DetectType(p)
		if err != nil {
			return nil, err
		}
		packages = append(packages, ScannedPackage{Path: p, Type: pkgType, Size: info.Size()})
	}
	return packages, nil
}

func (s *FileSystemScanner) detect(path string) (ScannedPackage, bool) {
	pkgType, err := s.DetectType(path)
	if err != nil {
		logrus.Warnf("Failed to detect type for %s: %v", path, err)
		return ScannedPackage{}, false
	}

	// Skip unknown types
	if pkgType == TypeUnknown {
		return ScannedPackage{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		logrus.Warnf("Failed to stat %s: %v", path, err)
		return ScannedPackage{}, false
	}

	logrus.Debugf("Found %s package: %s", pkgType, path)
	return ScannedPackage{Path: path, Type: pkgType, Size: info.Size()}, true
}

// DetectType determines the package type of a file
func (s *FileSystemScanner) DetectType(path string) (PackageType, error) {
	return DetectPackageType(path)
}
