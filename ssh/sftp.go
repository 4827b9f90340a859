package ssh

import (
	"io"
	"os"

	"github.com/pkg/sftp"
)

type files struct {
	client *sftp.Client
}

func (f *files) Put(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := f.client.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (f *files) Mkdir(path string, mode os.FileMode) error {
	if err := f.client.Mkdir(path); err != nil {
		return err
	}
	return f.client.Chmod(path, mode)
}

func (f *files) Chmod(path string, mode os.FileMode) error {
	return f.client.Chmod(path, mode)
}

func (f *files) Remove(path string) error {
	return f.client.Remove(path)
}

func (f *files) RemoveDirectory(path string) error {
	return f.client.RemoveDirectory(path)
}

func (f *files) Close() error {
	return f.client.Close()
}
