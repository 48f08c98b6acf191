package couchsite

import (
	"path"
	"sort"

	"github.com/disiqueira/gotree/v3"
)

// RenderTree draws attachment names as a directory tree below label.
func RenderTree(label string, names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	root := gotree.New(label)
	dirs := make(map[string]gotree.Tree)
	var getDir func(dir string) gotree.Tree
	getDir = func(dir string) gotree.Tree {
		if dir == "." || dir == "" {
			return root
		}
		node, ok := dirs[dir]
		if !ok {
			node = getDir(path.Dir(dir)).Add(path.Base(dir))
			dirs[dir] = node
		}
		return node
	}
	for _, name := range sorted {
		getDir(path.Dir(name)).Add(path.Base(name))
	}
	return root.Print()
}
