package codec

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/sirupsen/logrus"
)

// Interceptor may consume a tar member before it is staged. It returns true
// when the member was handled and must not appear in the manifest.
type Interceptor func(path string, hdr *tar.Header, r io.Reader) (bool, error)

// StageTar extracts every member of tr into the arena and returns the
// resulting manifest. Hard links become regular copies of their target.
func StageTar(ctx context.Context, tr *tar.Reader, arena *staging.Arena, member string, intercept Interceptor) ([]models.FileEntry, error) {
	var files []models.FileEntry
	index := make(map[string]int)

	add := func(f models.FileEntry) {
		if i, ok := index[f.Path]; ok {
			files[i] = f
			return
		}
		index[f.Path] = len(files)
		files = append(files, f)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewFormatError(member, -1, fmt.Errorf("corrupt archive: %w", err))
		}

		path, err := models.NormalizePath(hdr.Name)
		if err != nil {
			return nil, models.NewFormatError(member, -1, fmt.Errorf("%s: %w", hdr.Name, err))
		}
		if path == "" {
			continue
		}

		if intercept != nil {
			handled, err := intercept(path, hdr, tr)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
		}

		entry := models.FileEntry{
			Path:    path,
			Mode:    uint32(hdr.Mode) & 07777,
			Owner:   ownerName(hdr.Uname, hdr.Uid),
			Group:   ownerName(hdr.Gname, hdr.Gid),
			ModTime: hdr.ModTime,
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			entry.Kind = models.KindDirectory
			if err := arena.Mkdir(path); err != nil {
				return nil, err
			}
		case tar.TypeReg, tar.TypeRegA:
			entry.Kind = models.KindRegular
			sum, n, err := arena.Stage(path, tr)
			if err != nil {
				return nil, stagingError(member, path, err)
			}
			entry.Digest, entry.Size = sum, n
		case tar.TypeSymlink:
			entry.Kind = models.KindSymlink
			entry.LinkTarget = hdr.Linkname
		case tar.TypeLink:
			target, err := models.NormalizePath(hdr.Linkname)
			if err != nil {
				return nil, models.NewFormatError(member, -1, fmt.Errorf("%s: %w", hdr.Linkname, err))
			}
			i, ok := index[target]
			if !ok || !files[i].Kind.HasContent() {
				return nil, models.NewFormatError(member, -1, fmt.Errorf("hard link %s points to unknown file %s", path, target))
			}
			src, err := arena.Open(target)
			if err != nil {
				return nil, err
			}
			sum, n, err := arena.Stage(path, src)
			src.Close()
			if err != nil {
				return nil, stagingError(member, path, err)
			}
			entry.Kind = models.KindRegular
			entry.Digest, entry.Size = sum, n
			logrus.Debugf("Hard link %s staged as a copy of %s", path, target)
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			return nil, models.NewUnsupportedError(fmt.Sprintf("special file %s", path))
		case tar.TypeXGlobalHeader:
			continue
		default:
			return nil, models.NewUnsupportedError(fmt.Sprintf("tar member type %q for %s", hdr.Typeflag, path))
		}

		add(entry)
	}

	return files, nil
}

// stagingError keeps ConversionErrors as they are and treats anything else
// coming out of a tar stream as a truncated or corrupt member.
func stagingError(member, path string, err error) error {
	var ce *models.ConversionError
	if errors.As(err, &ce) {
		return err
	}
	return models.NewFormatError(member, -1, fmt.Errorf("%s: %w", path, err))
}

func ownerName(name string, id int) string {
	if name != "" {
		return name
	}
	if id == 0 {
		return "root"
	}
	return strconv.Itoa(id)
}

// TarLayout controls how WriteTar names entries
type TarLayout struct {
	// Prefix is prepended to every member name, e.g. "./" for Debian
	Prefix string
	// RootEntry adds a member for the root directory itself
	RootEntry bool
	// ModTime is used for synthesized entries and entries without one
	ModTime time.Time
}

// WriteTar writes the manifest of pkg, with contents from arena, to tw.
// Parent directories missing from the manifest are synthesized as 0755 root:root.
func WriteTar(ctx context.Context, tw *tar.Writer, pkg *models.Package, arena *staging.Arena, layout TarLayout) error {
	written := make(map[string]bool)

	dirHeader := func(path string, mode uint32, owner, group string, mtime time.Time) *tar.Header {
		return &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     layout.Prefix + path + "/",
			Mode:     int64(mode),
			Uname:    owner,
			Gname:    group,
			ModTime:  mtime,
		}
	}

	if layout.RootEntry {
		hdr := dirHeader("", 0755, "root", "root", layout.ModTime)
		hdr.Name = "./"
		if err := tw.WriteHeader(hdr); err != nil {
			return models.NewIOError("write tar", err)
		}
	}

	for _, f := range pkg.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		f = f.DefaultOwner()
		mtime := f.ModTime
		if mtime.IsZero() {
			mtime = layout.ModTime
		}

		for _, parent := range models.Parents(f.Path) {
			if written[parent] {
				continue
			}
			if _, inManifest := pkg.File(parent); inManifest {
				continue
			}
			if err := tw.WriteHeader(dirHeader(parent, 0755, "root", "root", layout.ModTime)); err != nil {
				return models.NewIOError("write tar", err)
			}
			written[parent] = true
		}

		switch f.Kind {
		case models.KindDirectory:
			if err := tw.WriteHeader(dirHeader(f.Path, f.Mode, f.Owner, f.Group, mtime)); err != nil {
				return models.NewIOError("write tar", err)
			}
		case models.KindSymlink:
			hdr := &tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     layout.Prefix + f.Path,
				Linkname: f.LinkTarget,
				Mode:     0777,
				Uname:    f.Owner,
				Gname:    f.Group,
				ModTime:  mtime,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return models.NewIOError("write tar", err)
			}
		default:
			if err := writeTarFile(tw, arena, layout.Prefix, f, mtime); err != nil {
				return err
			}
		}
		written[f.Path] = true
	}
	return nil
}

func writeTarFile(tw *tar.Writer, arena *staging.Arena, prefix string, f models.FileEntry, mtime time.Time) error {
	src, err := arena.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return models.NewIOError("stat staged "+f.Path, err)
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     prefix + f.Path,
		Size:     info.Size(),
		Mode:     int64(f.Mode),
		Uname:    f.Owner,
		Gname:    f.Group,
		ModTime:  mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return models.NewIOError("write tar", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return models.NewIOError("write tar", err)
	}
	return nil
}

// AddTarBytes writes an in-memory member, used for control and metadata files.
func AddTarBytes(tw *tar.Writer, name string, data []byte, mode int64, mtime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(data)),
		Mode:     mode,
		Uname:    "root",
		Gname:    "root",
		ModTime:  mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return models.NewIOError("write tar", err)
	}
	if _, err := tw.Write(data); err != nil {
		return models.NewIOError("write tar", err)
	}
	return nil
}
