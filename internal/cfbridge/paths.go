package cfbridge

import "strings"

// RelativePath converts a volume-relative normalized path reported by the OS
// (for example `\Users\me\Cloud\docs\a.txt`) into a path relative to the sync
// root with forward slashes (`docs/a.txt`). Either path may carry a drive letter.
func RelativePath(normalizedPath, syncRoot string) string {
	p := stripDrive(toSlash(normalizedPath))
	root := strings.Trim(stripDrive(toSlash(syncRoot)), "/")
	p = strings.TrimLeft(p, "/")

	if root != "" {
		if rest, ok := cutFold(p, root); ok {
			return strings.TrimLeft(rest, "/")
		}
		// The OS may report paths relative to the root folder itself.
		base := root
		if i := strings.LastIndexByte(root, '/'); i >= 0 {
			base = root[i+1:]
		}
		if rest, ok := cutFold(p, base); ok {
			return strings.TrimLeft(rest, "/")
		}
	}
	return p
}

// cutFold strips prefix from p, case-insensitively, when it is a whole path element.
func cutFold(p, prefix string) (string, bool) {
	if len(p) < len(prefix) || !strings.EqualFold(p[:len(prefix)], prefix) {
		return p, false
	}
	rest := p[len(prefix):]
	if rest != "" && rest[0] != '/' {
		return p, false
	}
	return rest, true
}

func stripDrive(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		return p[2:]
	}
	return p
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
