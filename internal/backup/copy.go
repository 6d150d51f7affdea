package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Copier performs best-effort recursive copies. A failing file or directory
// is recorded in the report and skipped, never retried.
type Copier struct {
	open func(name string) (*os.File, error)
}

// NewCopier 创建复制器
func NewCopier() *Copier {
	return &Copier{open: os.Open}
}

// copyJob 单次复制的状态
type copyJob struct {
	report  *Report
	visited map[string]bool // resolved directories on the current recursion path
}

// Copy copies the contents of sourceDir into destDir, which must exist.
// Files of a directory are copied before its subdirectories, both in name order.
func (c *Copier) Copy(sourceDir, destDir string) *Report {
	job := &copyJob{report: &Report{}, visited: make(map[string]bool)}
	c.copyDir(job, sourceDir, destDir)
	return job.report
}

func (c *Copier) copyDir(job *copyJob, sourceDir, destDir string) {
	// 符号链接目录可能形成环：只检查当前递归路径上的祖先目录
	if real, err := filepath.EvalSymlinks(sourceDir); err == nil {
		if job.visited[real] {
			job.report.Add(newRecord(
				&fs.PathError{Op: "copy", Path: sourceDir, Err: fmt.Errorf("symbolic link cycle: %w", errors.ErrUnsupported)},
				sourceDir, destDir, ""))
			return
		}
		job.visited[real] = true
		defer delete(job.visited, real)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		log.Debug().Err(err).Str("dir", sourceDir).Msg("failed to read directory")
		job.report.Add(newRecord(err, sourceDir, destDir, ""))
		return
	}

	// 先复制文件，再处理子目录
	var dirs []string
	for _, entry := range entries {
		sourcePath := filepath.Join(sourceDir, entry.Name())

		mode, err := entryMode(sourcePath, entry)
		if err == nil && mode.IsDir() {
			dirs = append(dirs, entry.Name())
			continue
		}
		if err == nil && !mode.IsRegular() {
			err = &fs.PathError{Op: "copy", Path: sourcePath, Err: fmt.Errorf("%s: %w", mode.Type(), errors.ErrUnsupported)}
		}
		if err == nil {
			err = c.copyFile(sourcePath, filepath.Join(destDir, entry.Name()))
		}
		if err != nil {
			log.Debug().Err(err).Str("file", sourcePath).Msg("failed to copy file")
			job.report.Add(newRecord(err, sourceDir, destDir, sourcePath))
		}
	}

	for _, name := range dirs {
		targetDir := filepath.Join(destDir, name)
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			log.Debug().Err(err).Str("dir", targetDir).Msg("failed to create directory")
			job.report.Add(newRecord(err, sourceDir, destDir, ""))
			continue
		}
		c.copyDir(job, filepath.Join(sourceDir, name), targetDir)
	}
}

// entryMode resolves symbolic links so linked files and directories are
// copied like their targets. A dangling link resolves to its own error.
func entryMode(path string, entry fs.DirEntry) (fs.FileMode, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Mode(), nil
}

// copyFile 复制文件并保持权限和修改时间
// The data goes to a temp file next to dst that is renamed over dst, so a
// failed copy never leaves a truncated destination.
func (c *Copier) copyFile(src, dst string) error {
	source, err := c.open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".foldersnap-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &fs.PathError{Op: "copy", Path: src, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		log.Debug().Err(err).Str("file", dst).Msg("failed to keep modification time")
	}
	return nil
}
