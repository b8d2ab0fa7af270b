package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxHops bounds symlink resolution, mirroring the kernel's ELOOP limit.
const maxHops = 40

// Hop is one step in a symlink chain. For link hops Target holds the
// absolute, cleaned resolution of the link; the terminal hop has no target.
type Hop struct {
	Path   string
	IsLink bool
	Target string
}

// Chain is the ordered sequence of symlink hops from a requested path to
// its terminal real file or directory. It is re-derived on every Watch call
// rather than relying on transparent OS-level symlink following, because
// relative targets and atomic multi-hop swaps (the Kubernetes ..data
// pattern) only make sense as explicit values.
type Chain struct {
	Origin   string
	Hops     []Hop
	Terminal string
	IsDir    bool
}

// resolveChain walks path, hop by hop, until a non-symlink terminal is
// reached. A symlink anywhere in the path, not just at the leaf, counts as
// a hop: /mount/tls.crt -> ..data/tls.crt with /mount/..data -> ..uuid/
// yields hops for both links. Relative link targets resolve against the
// link's own directory, never the process working directory.
func resolveChain(path string) (*Chain, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path for %s: %w", path, err)
	}

	c := &Chain{Origin: abs}
	current := filepath.Clean(abs)
	for hops := 0; ; hops++ {
		if hops > maxHops {
			return nil, fmt.Errorf("too many levels of symbolic links resolving %s", abs)
		}

		link, rest, err := firstLink(current)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", abs, err)
		}
		if link == "" {
			info, err := os.Lstat(current)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", abs, err)
			}
			c.Hops = append(c.Hops, Hop{Path: current})
			c.Terminal = current
			c.IsDir = info.IsDir()
			return c, nil
		}

		target, err := os.Readlink(link)
		if err != nil {
			return nil, fmt.Errorf("read link %s: %w", link, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(link), target)
		}
		target = filepath.Clean(target)

		c.Hops = append(c.Hops, Hop{Path: link, IsLink: true, Target: target})
		current = filepath.Join(target, rest)
	}
}

// firstLink returns the shortest prefix of path (walked component by
// component from the root) that is a symlink, along with the remaining
// suffix relative to it. Returns an empty link when no component is a
// symlink.
func firstLink(path string) (link, rest string, err error) {
	sep := string(os.PathSeparator)
	vol := filepath.VolumeName(path)
	parts := strings.Split(strings.Trim(path[len(vol):], sep), sep)

	prefix := vol + sep
	for i, part := range parts {
		prefix = filepath.Join(prefix, part)
		info, err := os.Lstat(prefix)
		if err != nil {
			return "", "", err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return prefix, filepath.Join(parts[i+1:]...), nil
		}
	}
	return "", "", nil
}
