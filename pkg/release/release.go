// Package release resolves which release of a project gets deployed: the
// pinned activeRelease from the project config, else the newest configured
// release, else the newest tag of the project's git repository.
package release

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/project"
)

// Release is the resolved release of a project.
type Release struct {
	// Tag is the release tag, e.g. "v1.4.2".
	Tag string

	// ImageRef is the container image reference configured for the tag.
	// Empty when the tag came from git with no configured image.
	ImageRef string
}

// Resolve determines the active release for a project rooted at dir.
// Resolution order: the config's activeRelease pin, then the newest
// configured release, then the newest git tag by commit time. A project
// with no releases and no tagged repository resolves to no release and no
// error; deploys then run without release tokens.
func Resolve(dir string, cfg *project.Config) (*Release, error) {
	if cfg.ActiveRelease != "" {
		rel, ok := cfg.Release(cfg.ActiveRelease)
		if !ok {
			return nil, errors.NotFoundError("release", cfg.ActiveRelease)
		}
		return fromRef(rel)
	}

	if len(cfg.Releases) > 0 {
		// Releases are configured oldest first; the newest is last.
		return fromRef(cfg.Releases[len(cfg.Releases)-1])
	}

	tag, err := newestGitTag(dir)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, nil
	}
	if rel, ok := cfg.Release(tag); ok {
		return fromRef(rel)
	}
	return &Release{Tag: tag}, nil
}

func fromRef(rel project.ReleaseRef) (*Release, error) {
	if rel.ImageRef != "" {
		if _, err := name.ParseReference(rel.ImageRef); err != nil {
			return nil, errors.ValidationError(
				fmt.Sprintf("release %q has an invalid image reference: %v", rel.Tag, err),
				map[string]interface{}{"tag": rel.Tag},
			)
		}
	}
	return &Release{Tag: rel.Tag, ImageRef: rel.ImageRef}, nil
}

// newestGitTag returns the tag whose commit is newest, or "" when dir is not
// a git repository or carries no tags.
func newestGitTag(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return "", nil
		}
		return "", fmt.Errorf("failed to open git repository: %w", err)
	}

	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("failed to list git tags: %w", err)
	}

	var newest string
	var newestTime int64
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		commit, err := resolveTagCommit(repo, ref)
		if err != nil {
			// Unresolvable refs (e.g. a tag to a missing object) are
			// skipped rather than failing the whole resolution.
			return nil
		}
		when := commit.Committer.When.Unix()
		if newest == "" || when > newestTime || (when == newestTime && ref.Name().Short() > newest) {
			newest = ref.Name().Short()
			newestTime = when
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk git tags: %w", err)
	}
	return newest, nil
}

// resolveTagCommit resolves a tag reference to its commit, peeling annotated
// tags.
func resolveTagCommit(repo *git.Repository, ref *plumbing.Reference) (*object.Commit, error) {
	if commit, err := repo.CommitObject(ref.Hash()); err == nil {
		return commit, nil
	}
	tag, err := repo.TagObject(ref.Hash())
	if err != nil {
		return nil, err
	}
	return tag.Commit()
}
