package image

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/opencontainers/go-digest"
)

// ErrParse is returned for malformed image names or digests.
var ErrParse = errors.New("invalid image identifier")

var supportedAlgorithms = map[digest.Algorithm]bool{
	digest.SHA256: true,
	digest.SHA384: true,
	digest.SHA512: true,
}

// Digest is an immutable image identifier. The zero value is not valid;
// construct with Parse.
type Digest struct {
	name   string
	digest digest.Digest
}

// Parse validates name and dgst and returns the combined identifier.
func Parse(name, dgst string) (Digest, error) {
	if err := validateName(name); err != nil {
		return Digest{}, err
	}

	d, err := digest.Parse(dgst)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: digest %q: %v", ErrParse, dgst, err)
	}
	if !supportedAlgorithms[d.Algorithm()] {
		return Digest{}, fmt.Errorf("%w: unsupported digest algorithm %q", ErrParse, d.Algorithm())
	}

	return Digest{name: name, digest: d}, nil
}

// MustParse is Parse for static configuration; it panics on error.
func MustParse(name, dgst string) Digest {
	d, err := Parse(name, dgst)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseReference splits a "name@algorithm:hex" reference and parses it.
func ParseReference(ref string) (Digest, error) {
	name, dgst, ok := strings.Cut(ref, "@")
	if !ok {
		return Digest{}, fmt.Errorf("%w: reference %q has no digest", ErrParse, ref)
	}
	return Parse(name, dgst)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrParse)
	}
	// The reference is placed among runtime arguments; a leading dash
	// would be read as an option.
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: name %q must not start with '-'", ErrParse, name)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: name %q contains non-printable or space characters", ErrParse, name)
		}
		if r == '@' {
			return fmt.Errorf("%w: name %q must not contain a digest", ErrParse, name)
		}
	}
	return nil
}

// Name returns the human-readable image name.
func (d Digest) Name() string { return d.name }

// Digest returns the content hash, e.g. "sha256:3b4c...".
func (d Digest) Digest() string { return d.digest.String() }

// Algorithm returns the hash algorithm of the content digest.
func (d Digest) Algorithm() string { return string(d.digest.Algorithm()) }

// Reference returns "name@digest", the form runtimes resolve by content.
func (d Digest) Reference() string {
	return d.name + "@" + d.digest.String()
}

// IsZero reports whether d was never parsed.
func (d Digest) IsZero() bool {
	return d.name == "" && d.digest == ""
}

// Equal reports whether both name and content hash match.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// Matches reports whether a repository name and digest string, as listed by a
// runtime's local image store, refer to exactly this image. Short names match
// their fully qualified form ("ffmpeg" matches "docker.io/library/ffmpeg").
func (d Digest) Matches(repository, dgst string) bool {
	if dgst != d.digest.String() {
		return false
	}
	if repository == d.name {
		return true
	}
	return strings.HasSuffix(repository, "/"+d.name) || strings.HasSuffix(d.name, "/"+repository)
}

func (d Digest) String() string {
	return d.Reference()
}
