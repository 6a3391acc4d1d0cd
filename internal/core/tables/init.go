// Package tables registers the built-in templates with the core registry.
// Import this package for its side effect.
package tables

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/JonMunkholm/sheetkit/internal/schema"
)

//go:embed builtin/*.yaml
var builtinFiles embed.FS

func init() {
	registerFiles(builtinFiles)
	registerSalesOrders()
}

// registerFiles registers every template in the embedded YAML files.
// A broken built-in file is a programming error and panics at startup.
func registerFiles(fsys fs.FS) {
	names, err := fs.Glob(fsys, "builtin/*.yaml")
	if err != nil {
		panic(err)
	}
	for _, name := range names {
		f, err := fsys.Open(name)
		if err != nil {
			panic(fmt.Errorf("open %s: %w", name, err))
		}
		defs, err := schema.Parse(f, name)
		f.Close()
		if err != nil {
			panic(err)
		}
		for _, def := range defs {
			def.Source = core.SourceBuiltin
			core.Register(def)
		}
	}
}
