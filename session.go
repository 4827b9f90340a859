package boss

import (
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/alessio/shellescape"
	"github.com/goware/prefixer"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// SessionOptions carries the per-run values a Session needs.
type SessionOptions struct {
	Layout      Layout
	Project     string
	Environment string
	Context     string
	Env         Environment
	// TmpDir is the remote directory holding ephemeral base directories.
	TmpDir string
	// DetokenBinary is the local boss binary staged on the host to run
	// the detokenizer. Defaults to the running executable.
	DetokenBinary string
	Log           *Logger
}

// Session owns one connection to one host and an ephemeral working
// directory on it. Close must be called on every exit path.
type Session struct {
	Target  HostTarget
	BaseDir string

	conn   Conn
	files  FileChannel
	opts   SessionOptions
	log    *Logger
	closed bool
}

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomSuffix draws 16 characters uniformly from suffixAlphabet. Bytes at
// or above the largest multiple of the alphabet size are rejected.
func randomSuffix() (string, error) {
	const limit = 256 - 256%len(suffixAlphabet)

	suffix := make([]byte, 0, 16)
	buf := make([]byte, 32)
	for len(suffix) < cap(suffix) {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit || len(suffix) == cap(suffix) {
				continue
			}
			suffix = append(suffix, suffixAlphabet[int(b)%len(suffixAlphabet)])
		}
	}
	return string(suffix), nil
}

// Open connects to target (a single attempt) and creates the session's
// ephemeral base directory.
func Open(dialer Dialer, target HostTarget, opts SessionOptions) (*Session, error) {
	if opts.Log == nil {
		opts.Log = DiscardLogger()
	}
	if opts.TmpDir == "" {
		opts.TmpDir = "/tmp"
	}

	conn, err := dialer.Dial(target.Host, target.User)
	if err != nil {
		return nil, ErrConnect{target.User, target.Host, err.Error()}
	}

	suffix, err := randomSuffix()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "generating session directory name")
	}

	s := &Session{
		Target:  target,
		BaseDir: path.Join(opts.TmpDir, "BOSS-"+suffix),
		conn:    conn,
		opts:    opts,
		log:     opts.Log,
	}
	if err := s.Mkdirs(s.BaseDir); err != nil {
		conn.Close()
		return nil, err
	}

	s.log.Infof("%s", target.Host)
	return s, nil
}

// Execute starts command on the host. The returned Output must be consumed
// for the command channel to be released.
func (s *Session) Execute(command string) (*Output, error) {
	s.log.Debugf("%s: %s", s.Target.Host, command)
	cmd, err := s.conn.Start(command)
	if err != nil {
		return nil, ErrCmd{Host: s.Target.Host, Command: command, Status: -1, Output: err.Error()}
	}
	return newOutput(cmd), nil
}

// run executes command and fails on a non-zero exit.
func (s *Session) run(command string) error {
	out, err := s.Execute(command)
	if err != nil {
		return err
	}
	text, status, err := out.Collect()
	if err != nil {
		return errors.Wrapf(err, "%s: %q", s.Target.Host, command)
	}
	if status != 0 {
		return ErrCmd{Host: s.Target.Host, Command: command, Status: status, Output: text}
	}
	return nil
}

// Mkdirs runs "mkdir -p" on the host.
func (s *Session) Mkdirs(dir string) error {
	return s.run("mkdir -p " + shellescape.Quote(dir))
}

// Rmdirs runs "rm -rf" on the host.
func (s *Session) Rmdirs(dir string) error {
	return s.run("rm -rf " + shellescape.Quote(dir))
}

func (s *Session) fileChannel() (FileChannel, error) {
	if s.files != nil {
		return s.files, nil
	}
	files, err := s.conn.Files()
	if err != nil {
		return nil, ErrTransfer{Host: s.Target.Host, Reason: "opening file channel: " + err.Error()}
	}
	s.files = files
	return files, nil
}

func transferMode(mode fs.FileMode) fs.FileMode {
	return mode & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

// putFile copies a local file to the host and replicates its mode.
func (s *Session) putFile(localPath, remotePath string) error {
	files, err := s.fileChannel()
	if err != nil {
		return err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return ErrTransfer{Host: s.Target.Host, Path: localPath, Reason: err.Error()}
	}
	if err := files.Put(localPath, remotePath); err != nil {
		return ErrTransfer{Host: s.Target.Host, Path: localPath, Reason: "file copy failed: " + err.Error()}
	}
	if err := files.Chmod(remotePath, transferMode(info.Mode())); err != nil {
		return ErrTransfer{Host: s.Target.Host, Path: localPath, Reason: "chmod failed: " + err.Error()}
	}
	return nil
}

// PushDirectory copies the local tree under localRoot to remoteRoot. Each
// directory is created before anything inside it is transferred.
func (s *Session) PushDirectory(localRoot, remoteRoot string) error {
	return filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return ErrTransfer{Host: s.Target.Host, Path: p, Reason: err.Error()}
		}

		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return ErrTransfer{Host: s.Target.Host, Path: p, Reason: err.Error()}
		}
		remote := path.Join(remoteRoot, filepath.ToSlash(rel))

		if d.IsDir() {
			if err := s.Mkdirs(remote); err != nil {
				return ErrTransfer{Host: s.Target.Host, Path: p, Reason: err.Error()}
			}
			return nil
		}

		// Symbolic links are followed. A linked directory is created but
		// not descended into.
		info, err := os.Stat(p)
		if err != nil {
			return ErrTransfer{Host: s.Target.Host, Path: p, Reason: err.Error()}
		}
		switch {
		case info.IsDir():
			if err := s.Mkdirs(remote); err != nil {
				return ErrTransfer{Host: s.Target.Host, Path: p, Reason: err.Error()}
			}
		case info.Mode().IsRegular():
			return s.putFile(p, remote)
		default:
			s.log.Warnf("| %s: not a regular file. Skipping.", p)
		}
		return nil
	})
}

// DeployScripts transfers every executable file of scriptDir to the host
// and runs it, in file name order. A missing directory or a non-executable
// file is only a warning.
func (s *Session) DeployScripts(scriptDir string) error {
	info, err := os.Stat(scriptDir)
	if os.IsNotExist(err) {
		s.log.Warnf("The %q script directory does not exist.", scriptDir)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		s.log.Warnf("The %q script directory is not a directory.", scriptDir)
		return nil
	}

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return err
	}
	// Scripts carry ordinal prefixes ("10-setup", "20-start"): plain
	// string order is the execution order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	remoteDir := path.Join(s.BaseDir, filepath.Base(scriptDir))
	if err := s.Mkdirs(remoteDir); err != nil {
		return err
	}

	env := s.opts.Env.Prefix()

	s.log.Infof("| %s", filepath.Base(remoteDir))
	for _, entry := range entries {
		localFile := filepath.Join(scriptDir, entry.Name())
		fi, err := os.Stat(localFile)
		if err != nil {
			s.log.Warnf("| %s: %v. Skipping.", entry.Name(), err)
			continue
		}
		if !fi.Mode().IsRegular() {
			s.log.Warnf("| %s: not a regular file. Skipping.", entry.Name())
			continue
		}
		if fi.Mode().Perm()&0111 == 0 {
			s.log.Warnf("| %s: not executable. Skipping.", entry.Name())
			continue
		}

		remoteFile := path.Join(remoteDir, entry.Name())
		if err := s.putFile(localFile, remoteFile); err != nil {
			return err
		}

		s.log.Infof("| | %s", entry.Name())
		out, err := s.Execute(env + " " + shellescape.Quote(remoteFile))
		if err != nil {
			return err
		}
		status, err := out.Each(func(l Line) {
			if l.Stream == Stderr {
				s.log.Warnf("| | | %s", l.Text)
				return
			}
			s.log.Infof("| | | %s", l.Text)
		})
		if err != nil {
			return errors.Wrapf(err, "%s: running %s", s.Target.Host, entry.Name())
		}
		if status != 0 {
			return ErrScript{Host: s.Target.Host, Script: entry.Name(), Status: status}
		}
	}

	return s.Rmdirs(remoteDir)
}

// Configure stages the project's templates and conf trees, pushes its pkg
// tree to deployRoot, and runs the detokenizer on the host to render the
// templates into deployRoot.
func (s *Session) Configure(deployRoot string) error {
	if deployRoot == "" {
		deployRoot = "/"
	}

	configRoot := path.Join(s.BaseDir, ".configure")
	projectDir := s.opts.Layout.Project(s.opts.Project)

	pushes := []struct {
		local, remote string
	}{
		{filepath.Join(projectDir, "templates"), path.Join(configRoot, "templates")},
		{filepath.Join(projectDir, "conf"), path.Join(configRoot, "conf")},
		{filepath.Join(projectDir, "pkg"), deployRoot},
	}
	for _, p := range pushes {
		if err := s.Mkdirs(p.remote); err != nil {
			return err
		}
		if _, err := os.Stat(p.local); os.IsNotExist(err) {
			s.log.Warnf("| %s does not exist. Skipping.", p.local)
			continue
		}
		if err := s.PushDirectory(p.local, p.remote); err != nil {
			return err
		}
	}

	bin := s.opts.DetokenBinary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return errors.Wrap(err, "locating the detokenizer")
		}
		bin = exe
	}
	remoteBin := path.Join(configRoot, "boss")
	files, err := s.fileChannel()
	if err != nil {
		return err
	}
	if err := files.Put(bin, remoteBin); err != nil {
		return ErrTransfer{Host: s.Target.Host, Path: bin, Reason: "file copy failed: " + err.Error()}
	}
	if err := files.Chmod(remoteBin, 0755); err != nil {
		return ErrTransfer{Host: s.Target.Host, Path: bin, Reason: "chmod failed: " + err.Error()}
	}

	s.log.Infof("| Detokenising the configuration templates")
	if err := s.Mkdirs(deployRoot); err != nil {
		return err
	}

	properties := path.Join(configRoot, "conf", fmt.Sprintf("%s-%s.properties", s.opts.Context, s.opts.Environment))
	command := fmt.Sprintf("%s detoken -c %s -t %s -d %s",
		shellescape.Quote(remoteBin),
		shellescape.Quote(properties),
		shellescape.Quote(path.Join(configRoot, "templates")),
		shellescape.Quote(deployRoot),
	)
	out, err := s.Execute(command)
	if err != nil {
		return err
	}
	status, err := out.Each(func(l Line) {
		if l.Stream == Stderr {
			s.log.Warnf("| | %s", l.Text)
			return
		}
		s.log.Infof("| | %s", l.Text)
	})
	if err != nil {
		return errors.Wrapf(err, "%s: detokenising", s.Target.Host)
	}
	if status != 0 {
		return ErrDetoken{Host: s.Target.Host, Status: status}
	}
	return nil
}

// Exec runs an ad-hoc command with the run's variables exported and copies
// its output to stdout and stderr, each line prefixed with the target.
func (s *Session) Exec(command string, stdout, stderr io.Writer) (int, error) {
	remote := "export " + s.opts.Env.Prefix() + "; " + command
	cmd, err := s.conn.Start(remote)
	if err != nil {
		return -1, ErrCmd{Host: s.Target.Host, Command: command, Status: -1, Output: err.Error()}
	}
	defer cmd.Close()

	prefix := s.Target.String() + " | "

	var wg sync.WaitGroup
	relay := func(w io.Writer, r io.Reader, name string) {
		defer wg.Done()
		if _, err := io.Copy(w, prefixer.New(r, prefix)); err != nil && err != io.EOF {
			s.log.Errorf("%s%s: %v", prefix, name, err)
		}
	}
	wg.Add(2)
	go relay(stdout, cmd.Stdout(), "STDOUT")
	go relay(stderr, cmd.Stderr(), "STDERR")
	wg.Wait()

	return cmd.Wait()
}

// Close removes the ephemeral base directory and closes the connection.
// It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	if err := s.Rmdirs(s.BaseDir); err != nil {
		result = multierror.Append(result, err)
	}
	if s.files != nil {
		if err := s.files.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.conn.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
