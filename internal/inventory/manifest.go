package inventory

import (
	"bytes"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/edvin/devtunnel/internal/model"
)

var (
	portLineRegex  = regexp.MustCompile(`(?im)^\s*[-*]?\s*(?:\*\*)?(?:dev[_ ]?)?port(?:\*\*)?\s*[:=]\s*(?:\*\*)?\s*(\d{1,5})\b`)
	envLineRegex   = regexp.MustCompile(`(?m)^\s*(?:export\s+)?PORT\s*=\s*["']?(\d{1,5})\b`)
	localhostRegex = regexp.MustCompile(`(?:localhost|127\.0\.0\.1):(\d{1,5})\b`)
)

type frontMatter struct {
	Port    any `yaml:"port"`
	DevPort any `yaml:"dev_port"`
}

// ParseManifestPort extracts a project's declared port from its manifest.
// Sources are tried in order: YAML front matter (port, then dev_port), a
// "port: N" or "PORT=N" line, then the first localhost:N reference. Only
// ports in 1-65535 are accepted.
func ParseManifestPort(content []byte) (int, bool) {
	if fm, ok := splitFrontMatter(content); ok {
		var meta frontMatter
		if err := yaml.Unmarshal(fm, &meta); err == nil {
			for _, v := range []any{meta.Port, meta.DevPort} {
				if p, ok := toPort(v); ok {
					return p, true
				}
			}
		}
	}
	for _, re := range []*regexp.Regexp{portLineRegex, envLineRegex, localhostRegex} {
		for _, m := range re.FindAllSubmatch(content, -1) {
			if p, err := strconv.Atoi(string(m[1])); err == nil && model.ValidPort(p) {
				return p, true
			}
		}
	}
	return 0, false
}

// splitFrontMatter returns the YAML between a leading "---" line and the next
// "---" line.
func splitFrontMatter(content []byte) ([]byte, bool) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	first, rest, ok := bytes.Cut(content, []byte("\n"))
	if !ok || string(bytes.TrimSpace(first)) != "---" {
		return nil, false
	}
	for off := 0; off < len(rest); {
		line, _, _ := bytes.Cut(rest[off:], []byte("\n"))
		if string(bytes.TrimSpace(line)) == "---" {
			return rest[:off], true
		}
		off += len(line) + 1
	}
	return nil, false
}

func toPort(v any) (int, bool) {
	var p int
	switch t := v.(type) {
	case int:
		p = t
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		p = n
	default:
		return 0, false
	}
	return p, model.ValidPort(p)
}
