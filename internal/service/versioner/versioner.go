package versioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/repository/artifact"
	"github.com/oshokin/xpi-release/internal/shell"
)

var (
	errEmptyDescribe    = errors.New("git describe returned nothing")
	errNoPackageVersion = errors.New("package file has no version")
)

// Describe is the parsed output of `git describe --tags`,
// e.g. 0.4.08-2-gb4f9f56.
type Describe struct {
	// Tag is the nearest tag reachable from HEAD.
	Tag string
	// Distance is the number of commits since Tag; zero when HEAD is the tag.
	Distance int
	// Hash is the abbreviated HEAD commit; empty when HEAD is the tag.
	Hash string
}

// ParseDescribe parses `git describe --tags` output. The distance and hash are
// taken from the right so tags containing dashes survive.
func ParseDescribe(output string) (*Describe, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, errEmptyDescribe
	}

	parts := strings.Split(output, "-")
	if n := len(parts); n >= 3 && strings.HasPrefix(parts[n-1], "g") {
		if distance, err := strconv.Atoi(parts[n-2]); err == nil && distance >= 0 {
			return &Describe{
				Tag:      strings.Join(parts[:n-2], "-"),
				Distance: distance,
				Hash:     strings.TrimPrefix(parts[n-1], "g"),
			}, nil
		}
	}

	return &Describe{Tag: output}, nil
}

// Resolver computes release versions.
type Resolver struct {
	// runner executes git.
	runner shell.Runner
	// workspace resolves the package file and the repository directory.
	workspace *artifact.Workspace
	// packageFile is the JSON file holding the base version.
	packageFile string
}

// NewResolver creates a resolver for the configured repository.
func NewResolver(runner shell.Runner, cfg *config.Config) *Resolver {
	return &Resolver{
		runner:      runner,
		workspace:   artifact.NewWorkspace(cfg.WorkDir),
		packageFile: cfg.PackageFile,
	}
}

// Resolve returns the base version, decorated with `.1b<distance>` when beta is set.
func (r *Resolver) Resolve(ctx context.Context, beta bool) (string, error) {
	output, err := r.runner.Run(ctx, shell.New("git", "describe", "--tags").In(r.workspace.Root()))
	if err != nil {
		return "", fmt.Errorf("describe tags: %w", err)
	}

	describe, err := ParseDescribe(output)
	if err != nil {
		return "", err
	}

	base, err := ReadBaseVersion(r.workspace.Path(r.packageFile))
	if err != nil {
		return "", err
	}

	version := base
	if beta {
		version = release.BetaVersion(base, describe.Distance)
	}

	logger.DebugKV(ctx, "Resolved version",
		"tag", describe.Tag, "distance", describe.Distance, "base", base, "version", version)

	return version, nil
}

// ReadBaseVersion reads the "version" key of a package JSON file.
func ReadBaseVersion(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read package file: %w", err)
	}

	var pkg struct {
		Version string `json:"version"`
	}

	if err = json.Unmarshal(contents, &pkg); err != nil {
		return "", fmt.Errorf("decode package file %s: %w", path, err)
	}

	version := strings.TrimSpace(pkg.Version)
	if version == "" {
		return "", fmt.Errorf("%s: %w", path, errNoPackageVersion)
	}

	return version, nil
}
