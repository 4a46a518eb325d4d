package pkg

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/cavaliergopher/cpio"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

var scriptFiles = map[string]models.ScriptKind{
	"preinstall":  models.PreInstall,
	"postinstall": models.PostInstall,
	"preremove":   models.PreRemove,
	"postremove":  models.PostRemove,
}

// memberHandler receives each archive member with its name relative to the
// package instance directory
type memberHandler func(rel string, hdr *cpio.Header, r io.Reader) error

// stagedBody records where a pkgmap object's content ended up
type stagedBody struct {
	digest string
	size   int64
}

// Read parses a Solaris datastream package, staging its objects into arena.
func (c *Codec) Read(ctx context.Context, path string, arena *staging.Arena) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewIOError("open package", err)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	var pkginfo, pkgmap []byte
	err = readArchive(ctx, cr, header.Inst, func(rel string, hdr *cpio.Header, r io.Reader) error {
		var err error
		switch rel {
		case "pkginfo":
			pkginfo, err = io.ReadAll(r)
		case "pkgmap":
			pkgmap, err = io.ReadAll(r)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if pkginfo == nil {
		return nil, models.NewFormatError("pkginfo", -1, fmt.Errorf("missing from datastream"))
	}
	if pkgmap == nil {
		return nil, models.NewFormatError("pkgmap", -1, fmt.Errorf("missing from datastream"))
	}

	values := parsePkginfo(pkginfo)
	pkg, err := packageFromPkginfo(values)
	if err != nil {
		return nil, err
	}
	basedir := values[keyBasedir]
	if basedir == "" {
		basedir = "/"
	}

	entries, err := parsePkgmap(pkgmap)
	if err != nil {
		return nil, err
	}

	s := &objectStager{arena: arena, basedir: basedir, entries: entries, staged: make(map[int]stagedBody), index: make(map[string]int)}
	for i, e := range entries {
		if e.hasContent() {
			s.index[e.archiveName()] = i
		}
	}

	info := make(map[string][]byte)
	err = readArchive(ctx, cr, header.Inst, func(rel string, hdr *cpio.Header, r io.Reader) error {
		switch {
		case strings.HasPrefix(rel, "install/"):
			data, err := io.ReadAll(r)
			if err != nil {
				return models.NewFormatError(rel, -1, err)
			}
			info[strings.TrimPrefix(rel, "install/")] = data
			return nil
		case strings.HasPrefix(rel, "archive/"):
			return s.stageClassArchive(ctx, rel, r)
		case isRegular(hdr):
			return s.stage(rel, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pkg.Files, err = s.manifest(); err != nil {
		return nil, err
	}

	for name, kind := range scriptFiles {
		if body, ok := info[name]; ok {
			pkg.SetScript(kind, models.NewScript(string(body), "/bin/sh"))
		}
	}
	if copyright, ok := info["copyright"]; ok {
		pkg.License = strings.TrimSpace(string(copyright))
	}
	if depend, ok := info["depend"]; ok {
		parseDepend(depend, pkg)
	}

	pkg.SortFiles()
	logrus.Debugf("Read pkg %s: %s %s, %d objects", header.Inst, pkg.Name, pkg.Version, len(pkg.Files))
	return pkg, nil
}

// readArchive walks one block-aligned cpio archive of the datastream
func readArchive(ctx context.Context, cr *countingReader, inst string, handle memberHandler) error {
	rd := cpio.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.NewFormatError("cpio", cr.n, err)
		}

		name := strings.TrimPrefix(path.Clean("/"+hdr.Name), "/")
		if name == inst {
			continue
		}
		rel := strings.TrimPrefix(name, inst+"/")
		if err := handle(rel, hdr, rd); err != nil {
			return err
		}
	}
	if err := cr.align(); err != nil && err != io.EOF {
		return models.NewFormatError("datastream", cr.n, err)
	}
	return nil
}

// objectStager places pkgmap object bodies in the arena
type objectStager struct {
	arena   *staging.Arena
	basedir string
	entries []mapEntry
	index   map[string]int
	staged  map[int]stagedBody
}

// stage writes the body of the object stored at rel, if pkgmap knows it
func (s *objectStager) stage(rel string, r io.Reader) error {
	i, ok := s.index[rel]
	if !ok {
		logrus.Debugf("Ignoring %s: not in pkgmap", rel)
		return nil
	}
	p, err := s.entries[i].installPath(s.basedir)
	if err != nil {
		return models.NewFormatError("pkgmap", -1, fmt.Errorf("%s: %w", s.entries[i].Path, err))
	}
	digest, size, err := s.arena.Stage(p, r)
	if err != nil {
		return err
	}
	s.staged[i] = stagedBody{digest: digest, size: size}
	return nil
}

// stageClassArchive unpacks archive/<class>[.bz2|.gz|.xz], a cpio of paths
// relative to the package root
func (s *objectStager) stageClassArchive(ctx context.Context, rel string, r io.Reader) error {
	zr, err := utils.NewDecompressReader(utils.CompressionFromName(rel), r)
	if err != nil {
		return models.NewFormatError(rel, -1, err)
	}
	defer zr.Close()

	rd := cpio.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return models.NewFormatError(rel, -1, err)
		}
		if !isRegular(hdr) {
			continue
		}
		name := strings.TrimPrefix(path.Clean("/"+hdr.Name), "/")
		if _, ok := s.index["reloc/"+name]; ok {
			err = s.stage("reloc/"+name, rd)
		} else {
			err = s.stage("root/"+name, rd)
		}
		if err != nil {
			return err
		}
	}
}

// manifest builds the file list, checking every staged body against pkgmap
func (s *objectStager) manifest() ([]models.FileEntry, error) {
	var files []models.FileEntry
	byPath := make(map[string]models.FileEntry)
	var links []mapEntry

	for i, e := range s.entries {
		if e.Type == 'i' {
			continue
		}
		p, err := e.installPath(s.basedir)
		if err != nil {
			return nil, models.NewFormatError("pkgmap", -1, fmt.Errorf("%s: %w", e.Path, err))
		}
		if p == "" {
			continue
		}

		f := e.fileEntry(p)
		switch {
		case e.Type == 'l':
			links = append(links, e)
			continue
		case e.hasContent():
			body, ok := s.staged[i]
			if !ok {
				return nil, models.NewFormatError(p, -1, fmt.Errorf("object listed in pkgmap has no content"))
			}
			if err := s.verify(p, e); err != nil {
				return nil, err
			}
			f.Digest, f.Size = body.digest, body.size
			if f.Kind == models.KindRegular && isDoc(p) {
				f.Kind = models.KindDocFile
			}
		case f.Kind == models.KindDirectory:
			if err := s.arena.Mkdir(p); err != nil {
				return nil, err
			}
		}
		files = append(files, f)
		byPath[p] = f
	}

	for _, l := range links {
		p, _ := l.installPath(s.basedir)
		target, err := mapEntry{Path: l.Target}.installPath(s.basedir)
		if err != nil {
			return nil, models.NewFormatError("pkgmap", -1, fmt.Errorf("%s: %w", l.Target, err))
		}
		src, ok := byPath[target]
		if !ok || !src.Kind.HasContent() {
			return nil, models.NewFormatError("pkgmap", -1, fmt.Errorf("hard link %s points to unknown file %s", p, target))
		}
		body, err := s.arena.Open(target)
		if err != nil {
			return nil, err
		}
		digest, size, err := s.arena.Stage(p, body)
		body.Close()
		if err != nil {
			return nil, err
		}
		f := src
		f.Path, f.Digest, f.Size = p, digest, size
		files = append(files, f)
	}
	return files, nil
}

// verify compares the staged body with the size and sum recorded in pkgmap
func (s *objectStager) verify(p string, e mapEntry) error {
	body, err := s.arena.Open(p)
	if err != nil {
		return err
	}
	defer body.Close()

	sum, size, err := utils.SVR4Sum(body)
	if err != nil {
		return models.NewIOError("checksum "+p, err)
	}
	if size != e.Size {
		return models.NewFormatError(p, -1, fmt.Errorf("size %d does not match pkgmap size %d", size, e.Size))
	}
	if sum != e.Sum {
		return models.NewFormatError(p, -1, fmt.Errorf("checksum %d does not match pkgmap checksum %d", sum, e.Sum))
	}
	return nil
}

func isDoc(p string) bool {
	return strings.HasPrefix(p, "usr/share/doc/") || strings.HasPrefix(p, "usr/doc/")
}

// isRegular ignores setuid and friends, which FileMode.IsRegular does not
func isRegular(hdr *cpio.Header) bool {
	return hdr.Mode&cpio.ModeType == cpio.TypeReg
}
