package build

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// CacheKey computes a SHA-256 hash over everything that determines a build
// artifact: the rendered project tree hash, the toolchain, the resolved
// command line and the target platform. It returns a 12-character hex prefix
// used to name the cache entry.
func CacheKey(treeHash, goVersion string, argv []string, env map[string]string) string {
	h := sha256.New()

	h.Write([]byte(treeHash))
	h.Write([]byte("\x00go\x00" + goVersion))

	// Each argument is framed so ["a b"] and ["a", "b"] never collide.
	for _, a := range argv {
		h.Write([]byte("\x00arg\x00" + a))
	}

	// Environment in sorted order for determinism
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte("\x00env\x00" + k + "=" + env[k]))
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:12]
}
