package release

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	// ArchiveExtension is the file extension of a packaged extension.
	ArchiveExtension = ".xpi"
	// UnpackedExtension replaces ArchiveExtension for the store-only variant.
	UnpackedExtension = ".unpacked.xpi"
	// UnsignedPrefix marks an archive waiting to be signed.
	UnsignedPrefix = "UNSIGNED_"

	// LatestArchive is the local and remote copy of the newest packed archive.
	LatestArchive = "latest.xpi"
	// LatestUnpackedArchive is the local and remote copy of the newest unpacked archive.
	LatestUnpackedArchive = "latest.unpacked.xpi"

	betaFolderSuffix = "_beta"
	preFolderSuffix  = "_pre"
	betaMarker       = ".1b"
)

var (
	// ErrChannelRequired is returned for an empty channel name.
	ErrChannelRequired = errors.New("channel must be provided")
	// ErrUnknownChannel is returned for a channel that is not configured.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Channel is a distribution target. It decides which files are stripped from
// the archive and which bucket folder the release lands in.
type Channel string

// ParseChannel validates value against the known channel names.
func ParseChannel(value string, known []string) (Channel, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrChannelRequired
	}

	if !slices.Contains(known, value) {
		sorted := slices.Clone(known)
		slices.Sort(sorted)

		return "", fmt.Errorf("%q (known: %s): %w", value, strings.Join(sorted, ", "), ErrUnknownChannel)
	}

	return Channel(value), nil
}

// String implements fmt.Stringer.
func (c Channel) String() string {
	return string(c)
}

// FolderName returns the bucket folder of a channel: the channel itself, or
// the channel with a "_beta" suffix for beta builds.
func FolderName(beta bool, channel Channel) string {
	if beta {
		return string(channel) + betaFolderSuffix
	}

	return string(channel)
}

// UploadFolder returns FolderName with a "_pre" suffix for pre-releases.
func UploadFolder(beta, pre bool, channel Channel) string {
	folder := FolderName(beta, channel)
	if pre {
		return folder + preFolderSuffix
	}

	return folder
}

// BetaVersion decorates base with the commit distance from the last tag.
func BetaVersion(base string, distance int) string {
	return base + betaMarker + strconv.Itoa(distance)
}

// ArchiveName returns the archive file name for a product and version.
func ArchiveName(name, version string) string {
	return name + "." + version + ArchiveExtension
}

// UnpackedName returns the unpacked variant name of an archive file.
func UnpackedName(fileName string) string {
	return strings.TrimSuffix(fileName, ArchiveExtension) + UnpackedExtension
}

// UnsignedName returns the name an archive carries while waiting to be signed.
func UnsignedName(fileName string) string {
	return UnsignedPrefix + fileName
}

// Artifact is a produced archive.
type Artifact struct {
	// FileName is the archive name relative to the working directory.
	FileName string
	// Version is the release version packaged into the archive.
	Version string
	// Channel is the distribution channel the archive was built for.
	Channel Channel
	// Beta reports whether this is a beta build.
	Beta bool
	// Signed reports whether the signer has processed the archive.
	Signed bool
	// Unpacked reports whether this is the store-only variant.
	Unpacked bool
}

// Path returns the archive location inside workDir.
func (a *Artifact) Path(workDir string) string {
	return filepath.Join(workDir, a.FileName)
}

// Folder returns the bucket folder of the artifact.
func (a *Artifact) Folder() string {
	return FolderName(a.Beta, a.Channel)
}

// UnpackedVariant returns the store-only counterpart of a packed artifact.
func (a *Artifact) UnpackedVariant() *Artifact {
	variant := *a
	variant.FileName = UnpackedName(a.FileName)
	variant.Unpacked = true

	return &variant
}
