package config

import (
	"path/filepath"
)

// Role 文件夹角色
type Role string

const (
	Target Role = "target" // 快照根目录
	Source Role = "source" // 定期备份的源目录
)

// Folder describes one configured directory.
type Folder struct {
	Path      string `json:"path"`
	Role      Role   `json:"role"`
	Frequency int    `json:"frequency,omitempty"` // seconds, sources only
}

// Name returns the last path segment, used as the folder name inside a run.
func (f Folder) Name() string {
	return filepath.Base(filepath.Clean(f.Path))
}

// RunConfig is the validated folder set handed to the scheduler.
// Folders[0] is the target, the rest are sources.
type RunConfig struct {
	Folders []Folder `json:"folders"`
}

// Target returns the target folder, or the zero Folder when the set is empty.
func (c *RunConfig) Target() Folder {
	if len(c.Folders) == 0 {
		return Folder{}
	}
	return c.Folders[0]
}

// Sources returns every folder after the target.
func (c *RunConfig) Sources() []Folder {
	if len(c.Folders) < 2 {
		return nil
	}
	return c.Folders[1:]
}

// SourcePaths returns the paths of all source folders.
func (c *RunConfig) SourcePaths() []string {
	sources := c.Sources()
	paths := make([]string, 0, len(sources))
	for _, f := range sources {
		paths = append(paths, f.Path)
	}
	return paths
}
