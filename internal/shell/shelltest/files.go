package shelltest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oshokin/xpi-release/internal/shell"
)

var errBadArgs = errors.New("unexpected arguments")

// WithFileTools emulates cp -R, zip and unzip on the real filesystem so
// packaging can be tested without those tools installed.
func (r *Runner) WithFileTools() *Runner {
	return r.
		On("cp", copyTree).
		On("zip", zipTree).
		On("unzip", unzipArchive)
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(dir, name)
}

// copyTree handles `cp -R <src> <dst>`.
func copyTree(cmd *shell.Command) (string, error) {
	if len(cmd.Args) != 3 || cmd.Args[0] != "-R" {
		return "", fmt.Errorf("cp %v: %w", cmd.Args, errBadArgs)
	}

	src, dst := resolve(cmd.Dir, cmd.Args[1]), resolve(cmd.Dir, cmd.Args[2])

	return "", os.CopyFS(dst, os.DirFS(src))
}

// zipTree handles `zip -q -r [-0] <out> . [-x <pattern>...]`.
func zipTree(cmd *shell.Command) (string, error) {
	var (
		out      string
		store    bool
		excludes []*regexp.Regexp
	)

	for i := 0; i < len(cmd.Args); i++ {
		switch arg := cmd.Args[i]; {
		case arg == "-0":
			store = true
		case arg == "-x":
			for _, pattern := range cmd.Args[i+1:] {
				excludes = append(excludes, globToRegexp(pattern))
			}

			i = len(cmd.Args)
		case strings.HasPrefix(arg, "-"), arg == ".":
		case out == "":
			out = resolve(cmd.Dir, arg)
		}
	}

	if out == "" {
		return "", fmt.Errorf("zip %v: %w", cmd.Args, errBadArgs)
	}

	file, err := os.Create(out)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	archive := zip.NewWriter(file)

	err = filepath.WalkDir(cmd.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}

		name, err := filepath.Rel(cmd.Dir, path)
		if err != nil {
			return err
		}

		name = filepath.ToSlash(name)
		for _, exclude := range excludes {
			if exclude.MatchString(name) {
				return nil
			}
		}

		method := zip.Deflate
		if store {
			method = zip.Store
		}

		w, err := archive.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		_, err = w.Write(data)

		return err
	})
	if err != nil {
		return "", err
	}

	return "", archive.Close()
}

// unzipArchive handles `unzip -q <archive> -d <dir>`.
func unzipArchive(cmd *shell.Command) (string, error) {
	var archivePath, dest string

	for i := 0; i < len(cmd.Args); i++ {
		switch arg := cmd.Args[i]; {
		case arg == "-d" && i+1 < len(cmd.Args):
			dest = resolve(cmd.Dir, cmd.Args[i+1])
			i++
		case strings.HasPrefix(arg, "-"):
		default:
			archivePath = resolve(cmd.Dir, arg)
		}
	}

	if archivePath == "" || dest == "" {
		return "", fmt.Errorf("unzip %v: %w", cmd.Args, errBadArgs)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, f := range reader.File {
		if err = extract(f, dest); err != nil {
			return "", err
		}
	}

	return "", nil
}

func extract(f *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}

	defer func() {
		_ = dst.Close()
	}()

	_, err = io.Copy(dst, src)

	return err
}

// globToRegexp converts a zip wildcard, where * also matches slashes.
func globToRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}

	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// ArchiveEntries lists the file names stored in a zip archive.
func ArchiveEntries(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = reader.Close()
	}()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}

	return names, nil
}

// ArchiveMethods maps each entry of a zip archive to its compression method.
func ArchiveMethods(path string) (map[string]uint16, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = reader.Close()
	}()

	methods := make(map[string]uint16, len(reader.File))
	for _, f := range reader.File {
		methods[f.Name] = f.Method
	}

	return methods, nil
}
