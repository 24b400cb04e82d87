package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// Routes is the key-value file naming the current routing targets, e.g.
//
//	ASTRO_TARGET=alsa_output.usb-Astro_A50-00.analog-stereo
//	MIC_SOURCE='VM-MIC'
//
// It is shell-sourceable and re-read on every lookup so that edits made
// by other tools take effect immediately.
type Routes struct {
	Path string
}

// Load reads all routes; a missing file yields an empty set
func (r Routes) Load() (map[string]string, error) {
	data, err := os.ReadFile(r.Path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseRoutes(data)
}

// Lookup returns the value of a single route
func (r Routes) Lookup(key string) (string, bool, error) {
	routes, err := r.Load()
	if err != nil {
		return "", false, err
	}
	v, ok := routes[key]
	return v, ok, nil
}

// Set writes key=value, keeping the other routes
func (r Routes) Set(key, value string) error {
	if !validKey(key) {
		return errors.Errorf("invalid route name %q", key)
	}
	routes, err := r.Load()
	if err != nil {
		return err
	}
	routes[key] = value

	keys := make([]string, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k + "=" + shellQuote(routes[k]) + "\n")
	}

	if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return err
	}
	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}

// Resolve expands a "$KEY" or "${KEY}" target name through the routes file.
// Other names are returned unchanged.
func (r Routes) Resolve(name string) (string, error) {
	key, ok := routeKey(name)
	if !ok {
		return name, nil
	}
	v, found, err := r.Lookup(key)
	if err != nil {
		return "", err
	}
	if !found || v == "" {
		return "", errors.Errorf("route %s is not set in %s", key, r.Path)
	}
	return v, nil
}

func routeKey(name string) (string, bool) {
	if !strings.HasPrefix(name, "$") {
		return "", false
	}
	key := strings.TrimPrefix(name, "$")
	if strings.HasPrefix(key, "{") && strings.HasSuffix(key, "}") {
		key = key[1 : len(key)-1]
	}
	return key, validKey(key)
}

// ParseRoutes parses KEY=value lines with shell quoting; blank lines,
// comments and a leading "export" are ignored
func ParseRoutes(data []byte) (map[string]string, error) {
	routes := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shlex.Split(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		if len(words) > 0 && words[0] == "export" {
			words = words[1:]
		}
		if len(words) != 1 {
			return nil, errors.Errorf("line %d: expected KEY=value", n)
		}
		key, value, ok := strings.Cut(words[0], "=")
		if !ok || !validKey(key) {
			return nil, errors.Errorf("line %d: expected KEY=value", n)
		}
		routes[key] = value
	}
	return routes, scanner.Err()
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || r == '-' || r == '.' || r == '/' || r == ':' ||
			r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
