package prolog

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// Sources is a search path of file systems for consult/1 and ensure_loaded/1.
// A name is looked up in each file system in turn until one has it.
type Sources []fs.FS

func (s Sources) Open(name string) (fs.File, error) {
	for _, fsys := range s {
		f, err := fsys.Open(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return f, err
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// OS opens files of the operating system. Unlike os.DirFS, it accepts absolute and parent-relative paths.
type OS struct{}

func (OS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// Stamped is a file system whose files report At as their modification time.
// It gives embedded files, which have no time, a stable one for ensure_loaded/1.
type Stamped struct {
	fs.FS
	At time.Time
}

func (s Stamped) Open(name string) (fs.File, error) {
	f, err := s.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return stampedFile{File: f, at: s.At}, nil
}

type stampedFile struct {
	fs.File
	at time.Time
}

func (f stampedFile) Stat() (fs.FileInfo, error) {
	fi, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return stampedInfo{FileInfo: fi, at: f.at}, nil
}

type stampedInfo struct {
	fs.FileInfo
	at time.Time
}

func (i stampedInfo) ModTime() time.Time {
	return i.at
}
