package rpm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"
	"mvdan.cc/sh/v3/syntax"
)

const (
	modeTypeMask = 0170000
	modeDir      = 0040000
	modeRegular  = 0100000
	modeSymlink  = 0120000
)

var scriptTags = []struct {
	kind       models.ScriptKind
	body, prog int
}{
	{models.PreInstall, tagPreIn, tagPreInProg},
	{models.PostInstall, tagPostIn, tagPostInProg},
	{models.PreRemove, tagPreUn, tagPreUnProg},
	{models.PostRemove, tagPostUn, tagPostUnProg},
}

// Read parses an RPM file and stages its payload into arena.
func (c *Codec) Read(ctx context.Context, path string, arena *staging.Arena) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewIOError("open package", err)
	}
	defer f.Close()

	l, err := readLead(f)
	if err != nil {
		return nil, err
	}
	if l.Type == leadSource {
		return nil, models.NewUnsupportedError("source RPM")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, models.NewIOError("read package", err)
	}

	// Read RPM header
	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, models.NewFormatError("header", leadSize, fmt.Errorf("failed to read RPM: %w", err))
	}
	if _, isSource := getIntTag(rpm, tagSourcePackage); isSource {
		return nil, models.NewUnsupportedError("source RPM")
	}

	pkg, err := packageFromHeader(rpm)
	if err != nil {
		return nil, err
	}
	if c.lsb || strings.HasPrefix(pkg.Name, "lsb-") {
		pkg.SourceFormat = scanner.TypeLsb.String()
	}

	// ghost files are listed in the header but have no payload member
	headerFiles, err := rpm.Header.GetFiles()
	if err != nil {
		return nil, models.NewFormatError("header", -1, fmt.Errorf("failed to read file list: %w", err))
	}
	for _, fi := range headerFiles {
		if fi.Flags()&fileFlagGhost != 0 {
			return nil, models.WithPackage(models.NewUnsupportedError(fmt.Sprintf("ghost file %s", fi.Name())), pkg.Name)
		}
	}

	pkg.Files, err = stagePayload(ctx, rpm, arena)
	if err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}
	pkg.SortFiles()

	if err := applyPrefixes(getStringSliceTag(rpm, tagPrefixes), pkg); err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}

	logrus.Debugf("Read rpm %s %s-%s with %d files", pkg.Name, pkg.Version, pkg.Release, len(pkg.Files))
	return pkg, nil
}

func packageFromHeader(rpm *rpmutils.Rpm) (*models.Package, error) {
	pkg := &models.Package{
		Name:         getStringTag(rpm, tagName),
		Version:      getStringTag(rpm, tagVersion),
		Release:      getStringTag(rpm, tagRelease),
		Architecture: mapping.ArchToCanonical(scanner.TypeRpm, getStringTag(rpm, tagArch)),
		Summary:      getStringTag(rpm, tagSummary),
		Description:  getStringTag(rpm, tagDescription),
		Maintainer:   getStringTag(rpm, tagPackager),
		Homepage:     getStringTag(rpm, tagURL),
		License:      getStringTag(rpm, tagLicense),
		Group:        getStringTag(rpm, tagGroup),
		SourceFormat: scanner.TypeRpm.String(),
	}
	if pkg.Name == "" {
		return nil, models.NewFormatError("NAME", -1, fmt.Errorf("mandatory tag missing"))
	}
	if pkg.Version == "" {
		return nil, models.NewFormatError("VERSION", -1, fmt.Errorf("mandatory tag missing"))
	}

	if epoch, ok := getIntTag(rpm, tagEpoch); ok {
		pkg.Epoch = models.IntPtr(int(epoch))
	}
	if t, ok := getIntTag(rpm, tagBuildTime); ok {
		pkg.BuildTime = time.Unix(t, 0).UTC()
	}
	if pkg.Maintainer == "" {
		pkg.Maintainer = getStringTag(rpm, tagVendor)
	}
	if pkg.License == "" {
		pkg.License = "unknown"
	}
	if pkg.Summary == "" {
		pkg.Summary = pkg.SummaryLine()
	}
	if pkg.Summary == "" {
		pkg.Summary = "Converted RPM package"
	}

	pkg.Depends = readRelations(rpm, tagRequireName, tagRequireFlags, tagRequireVersion, func(name string) bool {
		return strings.HasPrefix(name, "rpmlib(") || strings.HasPrefix(name, "config(")
	})
	pkg.Conflicts = readRelations(rpm, tagConflictName, tagConflictFlags, tagConflictVersion, nil)
	pkg.Replaces = readRelations(rpm, tagObsoleteName, tagObsoleteFlags, tagObsoleteVersion, nil)
	pkg.Provides = readRelations(rpm, tagProvideName, tagProvideFlags, tagProvideVersion, func(name string) bool {
		return name == pkg.Name || strings.HasPrefix(name, "config(")
	})
	for _, rel := range readRelations(rpm, tagSuggestName, tagSuggestFlags, tagSuggestVersion, nil) {
		rel.Informational = true
		pkg.Depends = append(pkg.Depends, rel)
	}

	for _, st := range scriptTags {
		body := getStringTag(rpm, st.body)
		if body == "" {
			continue
		}
		prog := getStringTag(rpm, st.prog)
		if prog == "" {
			prog = "/bin/sh"
		}
		if strings.HasPrefix(prog, "<") {
			// embedded interpreters such as <lua> only exist inside rpm itself
			return nil, models.NewUnsupportedError(fmt.Sprintf("%s scriptlet for %s", prog, st.kind))
		}
		pkg.SetScript(st.kind, models.Script{Interpreter: prog, Body: body})
	}

	pkg.Changelog = readChangelog(rpm)
	return pkg, nil
}

// readRelations zips the name, flags and version arrays of one dependency kind
func readRelations(rpm *rpmutils.Rpm, nameTag, flagsTag, versionTag int, skip func(string) bool) []models.Relation {
	names := getStringSliceTag(rpm, nameTag)
	flags := getIntsTag(rpm, flagsTag)
	versions := getStringSliceTag(rpm, versionTag)

	var rels []models.Relation
	for i, name := range names {
		if name == "" || (skip != nil && skip(name)) {
			continue
		}
		rel := models.Relation{Name: name}
		if i < len(flags) && i < len(versions) && versions[i] != "" {
			rel.Op = senseToOperator(flags[i])
			if rel.Op != models.OpAny {
				rel.Version = versions[i]
			}
		}
		if containsRelation(rels, rel) {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}

func containsRelation(rels []models.Relation, r models.Relation) bool {
	for _, existing := range rels {
		if existing == r {
			return true
		}
	}
	return false
}

func senseToOperator(flags int64) models.Operator {
	switch flags & (senseLess | senseGreater | senseEqual) {
	case senseLess:
		return models.OpLess
	case senseLess | senseEqual:
		return models.OpLessEqual
	case senseEqual:
		return models.OpEqual
	case senseGreater | senseEqual:
		return models.OpGreaterEqual
	case senseGreater:
		return models.OpGreater
	}
	return models.OpAny
}

// readChangelog pairs CHANGELOGTIME/NAME/TEXT. Names usually end in " - version".
func readChangelog(rpm *rpmutils.Rpm) []models.ChangelogEntry {
	times := getIntsTag(rpm, tagChangelogTime)
	names := getStringSliceTag(rpm, tagChangelogName)
	texts := getStringSliceTag(rpm, tagChangelogText)

	var entries []models.ChangelogEntry
	for i, name := range names {
		entry := models.ChangelogEntry{Author: name}
		if idx := strings.LastIndex(name, " - "); idx >= 0 {
			entry.Author = strings.TrimSpace(name[:idx])
			entry.Version = strings.TrimSpace(name[idx+3:])
		}
		if i < len(times) {
			entry.Date = time.Unix(times[i], 0).UTC()
		}
		if i < len(texts) {
			entry.Text = texts[i]
		}
		entries = append(entries, entry)
	}
	return entries
}

type hardLink struct {
	index int
	inode int
}

// stagePayload extracts the cpio payload into arena, checking every file
// against the digest recorded in the header.
func stagePayload(ctx context.Context, rpm *rpmutils.Rpm, arena *staging.Arena) ([]models.FileEntry, error) {
	payload, err := rpm.PayloadReaderExtended()
	if err != nil {
		return nil, models.NewFormatError("payload", -1, err)
	}

	var files []models.FileEntry
	// hard links share an inode; the body comes with one member of the group
	contentByInode := make(map[int]string)
	var pendingLinks []hardLink

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := payload.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewFormatError("payload", -1, fmt.Errorf("corrupt payload: %w", err))
		}

		path, err := models.NormalizePath(info.Name())
		if err != nil {
			return nil, models.NewFormatError("payload", -1, fmt.Errorf("%s: %w", info.Name(), err))
		}
		if path == "" {
			continue
		}
		if info.Flags()&fileFlagGhost != 0 {
			return nil, models.NewUnsupportedError(fmt.Sprintf("ghost file %s", path))
		}

		mode := info.Mode()
		entry := models.FileEntry{
			Path:    path,
			Mode:    uint32(mode) & 07777,
			Owner:   info.UserName(),
			Group:   info.GroupName(),
			ModTime: time.Unix(int64(info.Mtime()), 0).UTC(),
		}

		switch mode & modeTypeMask {
		case modeDir:
			entry.Kind = models.KindDirectory
			if err := arena.Mkdir(path); err != nil {
				return nil, err
			}
		case modeSymlink:
			entry.Kind = models.KindSymlink
			entry.LinkTarget = info.Linkname()
			if entry.LinkTarget == "" {
				target, err := io.ReadAll(payload)
				if err != nil {
					return nil, models.NewFormatError("payload", -1, fmt.Errorf("%s: %w", path, err))
				}
				entry.LinkTarget = string(target)
			}
		case modeRegular:
			entry.Kind = kindFromFlags(info.Flags())
			if payload.IsLink() {
				pendingLinks = append(pendingLinks, hardLink{index: len(files), inode: info.Inode()})
				break
			}
			sum, n, err := arena.Stage(path, payload)
			if err != nil {
				return nil, models.NewFormatError("payload", -1, fmt.Errorf("%s: %w", path, err))
			}
			entry.Size = n
			entry.Digest = sum
			contentByInode[info.Inode()] = path
			if err := verifyDigest(arena, path, sum, info.Digest()); err != nil {
				return nil, err
			}
		default:
			return nil, models.NewUnsupportedError(fmt.Sprintf("special file %s", path))
		}

		files = append(files, entry)
	}

	for _, link := range pendingLinks {
		entry := &files[link.index]
		src, ok := contentByInode[link.inode]
		if !ok {
			return nil, models.NewFormatError("payload", -1, fmt.Errorf("hard link %s has no content", entry.Path))
		}
		r, err := arena.Open(src)
		if err != nil {
			return nil, err
		}
		sum, n, err := arena.Stage(entry.Path, r)
		r.Close()
		if err != nil {
			return nil, err
		}
		entry.Size = n
		entry.Digest = sum
	}

	return files, nil
}

func kindFromFlags(flags int) models.FileKind {
	switch {
	case flags&fileFlagConfig != 0:
		return models.KindConfFile
	case flags&fileFlagDoc != 0:
		return models.KindDocFile
	}
	return models.KindRegular
}

// verifyDigest compares the staged MD5 or SHA-256, chosen by the recorded digest's length
func verifyDigest(arena *staging.Arena, path, md5sum, want string) error {
	want = strings.ToLower(strings.TrimSpace(want))
	switch len(want) {
	case 0:
		return nil
	case 32:
		if md5sum != want {
			return models.NewFormatError("digest", -1, fmt.Errorf("checksum mismatch for %s", path))
		}
	case 64:
		f, err := arena.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		got, err := utils.SHA256Digest(f)
		if err != nil {
			return models.NewIOError("hash "+path, err)
		}
		if got != want {
			return models.NewFormatError("digest", -1, fmt.Errorf("checksum mismatch for %s", path))
		}
	default:
		logrus.Debugf("Skipping digest check for %s: unknown algorithm", path)
	}
	return nil
}

// applyPrefixes handles relocatable packages: their scripts learn the install
// prefix through RPM_INSTALL_PREFIX, which only rpm itself would set.
func applyPrefixes(prefixes []string, pkg *models.Package) error {
	if len(prefixes) == 0 {
		return nil
	}
	if len(pkg.ConfFiles()) > 0 {
		return models.NewUnsupportedError("relocatable conffiles")
	}

	var exports strings.Builder
	for i, prefix := range prefixes {
		quoted, err := syntax.Quote(prefix, syntax.LangPOSIX)
		if err != nil {
			return models.NewEncodingError("PREFIXES", err)
		}
		if i == 0 {
			fmt.Fprintf(&exports, "RPM_INSTALL_PREFIX=%s\nexport RPM_INSTALL_PREFIX\n", quoted)
		}
		fmt.Fprintf(&exports, "RPM_INSTALL_PREFIX%d=%s\nexport RPM_INSTALL_PREFIX%d\n", i, quoted, i)
	}

	for kind, s := range pkg.Scripts {
		if !s.IsShell() {
			continue
		}
		body := s.Body
		if s.HasShebang() {
			line, rest, _ := strings.Cut(body, "\n")
			body = line + "\n" + exports.String() + rest
		} else {
			body = exports.String() + body
		}
		pkg.Scripts[kind] = models.Script{Interpreter: s.Interpreter, Body: body}
	}
	return nil
}
