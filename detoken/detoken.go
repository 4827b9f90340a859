// Package detoken renders a tree of template files, replacing @TOKEN@
// placeholders with values from a properties file. It follows the filter
// rules of Ant's copy task: tokens are flat names, and a replacement value
// may itself contain tokens, resolved on a later pass.
package detoken

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// MaxPasses bounds nested substitution on a single line.
const MaxPasses = 64

// vcsDirs are never copied to the destination.
var vcsDirs = map[string]bool{
	".svn": true,
	".git": true,
	".hg":  true,
	".bzr": true,
	"CVS":  true,
}

// ErrCycle is returned when a line does not converge within MaxPasses,
// which happens with self-referencing token definitions.
type ErrCycle struct {
	Path string
	Line string
}

func (e ErrCycle) Error() string {
	return fmt.Sprintf("%s: token substitution did not converge after %d passes: %q", e.Path, MaxPasses, e.Line)
}

// ErrOpenOutput means an output file could not be opened for writing.
type ErrOpenOutput struct {
	Path   string
	Reason string
}

func (e ErrOpenOutput) Error() string {
	return fmt.Sprintf("could not open a file for writing: %s: %s", e.Path, e.Reason)
}

// Detokenizer rewrites template trees with a fixed set of properties.
type Detokenizer struct {
	props  Properties
	keys   []string
	logger *log.Logger
}

func New(props Properties, logger *log.Logger) *Detokenizer {
	return &Detokenizer{
		props:  props,
		keys:   props.keys(),
		logger: logger,
	}
}

// Replace substitutes every known @KEY@ in line, pass after pass, until a
// full pass changes nothing. Unknown tokens are left as they are.
func (d *Detokenizer) Replace(line string) (string, error) {
	for pass := 0; pass < MaxPasses; pass++ {
		changed := false
		for _, key := range d.keys {
			token := "@" + key + "@"
			if !strings.Contains(line, token) {
				continue
			}
			next := strings.ReplaceAll(line, token, d.props[key])
			if next != line {
				d.logger.Debugf("Replaced %q with %q", token, d.props[key])
				line = next
				changed = true
			}
		}
		if !changed {
			return line, nil
		}
	}
	return "", ErrCycle{Line: strings.TrimRight(line, "\r\n")}
}

// Render writes the detokenized copy of the template tree under
// templateRoot into destRoot, skipping version control directories.
func (d *Detokenizer) Render(templateRoot, destRoot string) error {
	return filepath.WalkDir(templateRoot, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(templateRoot, p)
		if err != nil {
			return err
		}
		target := filepath.Join(destRoot, rel)

		if entry.IsDir() {
			if p != templateRoot && vcsDirs[entry.Name()] {
				d.logger.Debugf("Ignoring %s directory", p)
				return filepath.SkipDir
			}
			if err := os.MkdirAll(target, 0755); err != nil {
				d.logger.Warnf("Could not make directory: %s", target)
			}
			return nil
		}

		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			d.logger.Warnf("Skipping %s: not a regular file", p)
			return nil
		}
		return d.renderFile(p, target, info.Mode())
	})
}

func (d *Detokenizer) renderFile(src, dst string, mode fs.FileMode) error {
	d.logger.Debugf("Writing %s to %s", src, dst)

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ErrOpenOutput{Path: dst, Reason: err.Error()}
	}
	defer out.Close()

	reader := bufio.NewReader(in)
	writer := bufio.NewWriter(out)
	for {
		line, rerr := reader.ReadString('\n')
		if len(line) > 0 {
			replaced, err := d.Replace(line)
			if err != nil {
				if cycle, ok := err.(ErrCycle); ok {
					cycle.Path = src
					return cycle
				}
				return err
			}
			if _, err := writer.WriteString(replaced); err != nil {
				return errors.Wrapf(err, "writing %s", dst)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.Wrapf(rerr, "reading %s", src)
		}
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrapf(err, "writing %s", dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "writing %s", dst)
	}

	return os.Chmod(dst, mode&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky))
}

// Run loads the properties file and renders templateRoot into destRoot. A
// missing properties file turns the run into a plain copy.
func Run(propertiesPath, templateRoot, destRoot string, logger *log.Logger) error {
	props, err := LoadProperties(propertiesPath, logger)
	if errors.Cause(err) == ErrNoProperties {
		logger.Warnf("%v; copying templates without substitution", err)
		props = Properties{}
	} else if err != nil {
		return err
	}
	return New(props, logger).Render(templateRoot, destRoot)
}
