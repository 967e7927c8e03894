package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// one lock per path, shared by every EnvFile opened on it
var envFileLocks sync.Map

// ValidEnvKey reports whether key can be written to a dotenv file.
func ValidEnvKey(key string) bool {
	return envKeyPattern.MatchString(key)
}

// EnvFile is a dotenv file edited line by line. Lines other than the one
// being changed are written back byte for byte, so comments, ordering and
// ${VAR} references survive. Writes are serialized per path.
type EnvFile struct {
	Path string
	mu   *sync.Mutex
}

func OpenEnvFile(path string) *EnvFile {
	mu, _ := envFileLocks.LoadOrStore(path, &sync.Mutex{})
	return &EnvFile{Path: path, mu: mu.(*sync.Mutex)}
}

// envLine is one physical line. key is empty for blanks and comments.
type envLine struct {
	raw   string
	key   string
	value string
}

func parseEnvLine(raw string) envLine {
	l := envLine{raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return l
	}
	s = strings.TrimPrefix(s, "export ")
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return l
	}
	l.key = strings.TrimSpace(s[:i])
	l.value = unquoteEnvValue(strings.TrimSpace(s[i+1:]))
	return l
}

// unquoteEnvValue strips one level of quoting. References such as ${VAR}
// are returned as written.
func unquoteEnvValue(v string) string {
	if len(v) < 2 {
		return v
	}
	switch {
	case v[0] == '\'' && v[len(v)-1] == '\'':
		return v[1 : len(v)-1]
	case v[0] == '"' && v[len(v)-1] == '"':
		inner := v[1 : len(v)-1]
		var b strings.Builder
		for i := 0; i < len(inner); i++ {
			c := inner[i]
			if c != '\\' || i == len(inner)-1 {
				b.WriteByte(c)
				continue
			}
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(inner[i])
			}
		}
		return b.String()
	}
	if i := strings.Index(v, " #"); i >= 0 {
		return strings.TrimSpace(v[:i])
	}
	return v
}

func (f *EnvFile) lines() ([]envLine, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error reading %s", f.Path)
	}

	b = bytes.TrimSuffix(b, []byte("\n"))
	if len(b) == 0 {
		return nil, nil
	}
	var out []envLine
	for _, raw := range strings.Split(string(b), "\n") {
		out = append(out, parseEnvLine(strings.TrimSuffix(raw, "\r")))
	}
	return out, nil
}

// Read returns the file's variables without expanding references. A
// missing file reads as empty.
func (f *EnvFile) Read() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.lines()
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string, len(lines))
	for _, l := range lines {
		if l.key != "" {
			vars[l.key] = l.value
		}
	}
	return vars, nil
}

// Set creates or overwrites key. The first existing line for key is
// rewritten in place and later duplicates are dropped.
func (f *EnvFile) Set(key, value string) error {
	if !ValidEnvKey(key) {
		return errors.Errorf("invalid configuration key %q", key)
	}

	encoded, err := encodeEnvLine(key, value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.lines()
	if err != nil {
		return err
	}

	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, l := range lines {
		if l.key != key {
			out = append(out, l.raw)
			continue
		}
		if !replaced {
			out = append(out, encoded)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, encoded)
	}
	return f.write(out)
}

// encodeEnvLine formats one KEY=value line. godotenv escapes $ so the value
// is stored literally.
func encodeEnvLine(key, value string) (string, error) {
	if n, err := strconv.Atoi(value); err == nil && strconv.Itoa(n) != value {
		// godotenv would write "007" as 7
		return key + `="` + value + `"`, nil
	}
	line, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return "", errors.Wrap(err, "error encoding setting")
	}
	return line, nil
}

// Delete removes every line for key and reports whether one was present.
func (f *EnvFile) Delete(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.lines()
	if err != nil {
		return false, err
	}

	out := make([]string, 0, len(lines))
	found := false
	for _, l := range lines {
		if l.key == key {
			found = true
			continue
		}
		out = append(out, l.raw)
	}
	if !found {
		return false, nil
	}
	return true, f.write(out)
}

// write replaces the file through a temp file in the same directory.
func (f *EnvFile) write(lines []string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(f.Path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "error creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return errors.Wrapf(err, "error writing %s", f.Path)
	}
	defer os.Remove(tmp.Name())

	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "error writing %s", f.Path)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "error writing %s", f.Path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "error writing %s", f.Path)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return errors.Wrapf(err, "error writing %s", f.Path)
	}
	return nil
}
