package boss

import (
	"os"
	"path/filepath"
)

// Layout locates the global configuration, common scripts and projects
// under a BOSS root directory:
//
//	conf/boss.conf
//	common/scripts/
//	projects/<project>/project.conf
//	projects/<project>/{templates,conf,pkg,scripts}/
type Layout struct {
	Root string
}

// DefaultLayout uses $BOSS_HOME if set, otherwise the parent of the
// directory holding the running binary (<root>/bin/boss).
func DefaultLayout() (Layout, error) {
	if home := os.Getenv("BOSS_HOME"); home != "" {
		return Layout{Root: home}, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return Layout{}, err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: filepath.Dir(filepath.Dir(exe))}, nil
}

func (l Layout) GlobalConfig() string {
	return filepath.Join(l.Root, "conf", "boss.conf")
}

func (l Layout) CommonScripts() string {
	return filepath.Join(l.Root, "common", "scripts")
}

func (l Layout) Project(project string) string {
	return filepath.Join(l.Root, "projects", project)
}

func (l Layout) ProjectConfig(project string) string {
	return filepath.Join(l.Project(project), "project.conf")
}

func (l Layout) ProjectScripts(project string) string {
	return filepath.Join(l.Project(project), "scripts")
}
