package detoken

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// ErrNoProperties is returned by LoadProperties when the file does not
// exist.
var ErrNoProperties = errors.New("properties file not found")

// Properties maps token names to their values.
type Properties map[string]string

// ParseProperties reads KEY=VALUE lines. The key is everything before the
// first '='; the value is the rest with surrounding whitespace removed.
// Lines without '=' are skipped.
func ParseProperties(r io.Reader, logger *log.Logger) (Properties, error) {
	props := Properties{}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			key, value, ok := strings.Cut(line, "=")
			switch {
			case !ok:
				logger.Debugf("Could not parse line: %q", line)
			case key == "":
				logger.Debugf("Empty key in line: %q", line)
			default:
				props[key] = strings.TrimSpace(value)
				logger.Debugf("Parsed key: %q and value: %q", key, props[key])
			}
		}
		if err == io.EOF {
			return props, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// LoadProperties parses the properties file at path.
func LoadProperties(path string, logger *log.Logger) (Properties, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNoProperties, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props, err := ParseProperties(f, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return props, nil
}

// keys returns the token names in sorted order.
func (p Properties) keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
