package internal

import (
	"io/fs"
	"os"
)

// OsProxy defines the subset of os package functions we want to proxy.
// Add more methods as you need them.
type OsProxy interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	DirFS(dir string) fs.FS
}

// RealOS is the default implementation that delegates to the real os package.
type RealOS struct{}

func (RealOS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }     //nolint:revive
func (RealOS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) } //nolint:revive
func (RealOS) Remove(name string) error              { return os.Remove(name) }   //nolint:revive
func (RealOS) DirFS(dir string) fs.FS                { return os.DirFS(dir) }     //nolint:revive
