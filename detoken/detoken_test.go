package detoken

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *log.Logger {
	return log.New(io.Discard)
}

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), mode))
	require.NoError(t, os.Chmod(p, mode))
}

// readTree returns the content of every regular file under root, keyed by
// slash-separated relative path.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return tree
}

func TestReplace(t *testing.T) {
	d := New(Properties{
		"FOO":  "1",
		"BAR":  "2",
		"NAME": "@HOST@.example.com",
		"HOST": "web1",
	}, discard())

	tt := []struct {
		line string
		want string
	}{
		{"@FOO@-@BAR@", "1-2"},
		{"@FOO@@FOO@", "11"},
		{"url=http://@NAME@/\n", "url=http://web1.example.com/\n"},
		{"keep @MISSING@ and @FOO", "keep @MISSING@ and @FOO"},
		{"user@example.com", "user@example.com"},
		{"", ""},
	}
	for _, test := range tt {
		got, err := d.Replace(test.line)
		require.NoError(t, err, test.line)
		assert.Equal(t, test.want, got, test.line)

		// A rendered line renders to itself.
		again, err := d.Replace(got)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestReplaceNested(t *testing.T) {
	d := New(Properties{"FOO": "@BAR@", "BAR": "done"}, discard())

	got, err := d.Replace("@FOO@")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestReplaceSelfReference(t *testing.T) {
	// Replacing @A@ with itself changes nothing, so the line converges.
	got, err := New(Properties{"A": "@A@"}, discard()).Replace("value=@A@\n")
	require.NoError(t, err)
	assert.Equal(t, "value=@A@\n", got)
}

func TestReplaceCycle(t *testing.T) {
	tt := []Properties{
		{"A": "@B@", "B": "@A@"},
		{"A": "x@A@"},
	}
	for _, props := range tt {
		_, err := New(props, discard()).Replace("value=@A@\n")
		require.Error(t, err)
		cycle, ok := err.(ErrCycle)
		require.True(t, ok, "expected ErrCycle, got %T", err)
		assert.NotContains(t, cycle.Line, "\n")
	}
}

func TestParseProperties(t *testing.T) {
	input := "FOO=1\nBAR = spaced value  \nURL=http://host/?a=b\nno separator here\n=orphan\nEMPTY=\nLAST=no newline"

	props, err := ParseProperties(strings.NewReader(input), discard())
	require.NoError(t, err)

	want := Properties{
		"FOO":   "1",
		"BAR ":  "spaced value",
		"URL":   "http://host/?a=b",
		"EMPTY": "",
		"LAST":  "no newline",
	}
	if diff := cmp.Diff(want, props); diff != "" {
		t.Errorf("ParseProperties() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPropertiesMissing(t *testing.T) {
	_, err := LoadProperties(filepath.Join(t.TempDir(), "none.properties"), discard())
	require.Error(t, err)
	assert.Equal(t, ErrNoProperties, errors.Cause(err))
}

func TestRender(t *testing.T) {
	templates := t.TempDir()
	writeFile(t, templates, "etc/app.conf", "name=@NAME@\r\nport=@PORT@\r\n", 0640)
	writeFile(t, templates, "bin/run", "#!/bin/sh\nexec @NAME@ --port=@PORT@", 0755)
	writeFile(t, templates, ".svn/entries", "@NAME@", 0644)
	writeFile(t, templates, "etc/.git/HEAD", "ref", 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(templates, "var/log"), 0755))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, New(Properties{"NAME": "shop", "PORT": "8080"}, discard()).Render(templates, dest))

	want := map[string]string{
		"etc/app.conf": "name=shop\r\nport=8080\r\n",
		"bin/run":      "#!/bin/sh\nexec shop --port=8080",
	}
	if diff := cmp.Diff(want, readTree(t, dest)); diff != "" {
		t.Errorf("rendered tree mismatch (-want +got):\n%s", diff)
	}
	assert.DirExists(t, filepath.Join(dest, "var/log"))

	for name, mode := range map[string]os.FileMode{"etc/app.conf": 0640, "bin/run": 0755} {
		info, err := os.Stat(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, mode, info.Mode().Perm(), name)
	}
}

func TestRunWithoutProperties(t *testing.T) {
	templates := t.TempDir()
	writeFile(t, templates, "a.conf", "x=@X@\n", 0644)
	writeFile(t, templates, "sub/b.conf", "binary\x00@Y@", 0600)

	dest := t.TempDir()
	var logs bytes.Buffer
	require.NoError(t, Run(filepath.Join(templates, "missing.properties"), templates, dest, log.New(&logs)))

	if diff := cmp.Diff(readTree(t, templates), readTree(t, dest)); diff != "" {
		t.Errorf("copy mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, logs.String(), "without substitution")
}

func TestExitCode(t *testing.T) {
	tt := []struct {
		err  error
		code int
	}{
		{nil, ExitOK},
		{errors.New("required flag(s) \"config\" not set"), ExitUsage},
		{ErrOpenOutput{Path: "/x"}, ExitOpenOutput},
		{errors.Wrap(ErrOpenOutput{Path: "/x"}, "rendering"), ExitOpenOutput},
		{ErrCycle{Path: "/y"}, ExitCycle},
	}
	for _, test := range tt {
		assert.Equal(t, test.code, ExitCode(test.err), "%v", test.err)
	}
}

func TestMainExitCodes(t *testing.T) {
	templates := t.TempDir()
	writeFile(t, templates, "app.conf", "name=@NAME@\n", 0644)
	conf := t.TempDir()
	writeFile(t, conf, "ok.properties", "NAME=shop\n", 0644)
	writeFile(t, conf, "cycle.properties", "NAME=@NAME@!\n", 0644)

	t.Run("ok", func(t *testing.T) {
		dest := t.TempDir()
		var stderr bytes.Buffer
		code := Main([]string{"-c", filepath.Join(conf, "ok.properties"), "-t", templates, "-d", dest}, io.Discard, &stderr)
		require.Equal(t, ExitOK, code, stderr.String())

		data, err := os.ReadFile(filepath.Join(dest, "app.conf"))
		require.NoError(t, err)
		assert.Equal(t, "name=shop\n", string(data))
	})

	t.Run("missing flags", func(t *testing.T) {
		var stderr bytes.Buffer
		code := Main([]string{"-c", filepath.Join(conf, "ok.properties")}, io.Discard, &stderr)
		assert.Equal(t, ExitUsage, code)
		assert.Contains(t, stderr.String(), "required flag")
	})

	t.Run("unwritable destination", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		var stderr bytes.Buffer
		code := Main([]string{"--config", filepath.Join(conf, "ok.properties"), "--templates", templates, "--destination", blocker}, io.Discard, &stderr)
		assert.Equal(t, ExitOpenOutput, code)
		assert.Contains(t, stderr.String(), "could not open a file for writing")
	})

	t.Run("cycle", func(t *testing.T) {
		var stderr bytes.Buffer
		code := Main([]string{"-c", filepath.Join(conf, "cycle.properties"), "-t", templates, "-d", t.TempDir()}, io.Discard, &stderr)
		assert.Equal(t, ExitCycle, code)
		assert.Contains(t, stderr.String(), "did not converge")
	})
}
