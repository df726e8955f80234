package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strconv"
	"strings"
	"testing"

	"moodboard/internal/config"
)

const defaultMaxCmdConstructorLines = 100

// Command constructors only wire flags and a RunE; anything longer belongs
// in a helper.
func TestCommandConstructorsStaySmall(t *testing.T) {
	maxLines := maxCmdConstructorLines()
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(info os.FileInfo) bool {
		return !strings.HasSuffix(info.Name(), "_test.go")
	}, 0)
	if err != nil {
		t.Fatalf("parse package: %v", err)
	}

	for _, pkg := range pkgs {
		for path, file := range pkg.Files {
			ast.Inspect(file, func(n ast.Node) bool {
				fn, ok := n.(*ast.FuncDecl)
				if !ok || fn.Body == nil || !isCommandConstructor(fn.Name.Name) {
					return true
				}
				length := fset.Position(fn.Body.Rbrace).Line - fset.Position(fn.Body.Lbrace).Line + 1
				if length > maxLines {
					t.Errorf("%s: constructor %s is %d lines (max %d)", path, fn.Name.Name, length, maxLines)
				}
				return false
			})
		}
	}
}

func TestLeafCommandsAreRunnableAndDescribed(t *testing.T) {
	cfg := config.Default()
	root := newRootCmd(&cfg)
	for _, path := range collectLeafCommandPaths(root) {
		cmd, _, err := root.Find(strings.Fields(path))
		if err != nil {
			t.Fatalf("find %q: %v", path, err)
		}
		if cmd.RunE == nil {
			t.Errorf("%q has no RunE", path)
		}
		if strings.TrimSpace(cmd.Short) == "" {
			t.Errorf("%q has no short description", path)
		}
	}
}

func isCommandConstructor(name string) bool {
	return strings.HasPrefix(name, "new") && strings.HasSuffix(name, "Cmd")
}

func maxCmdConstructorLines() int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv("MOODBOARD_MAX_CMD_CONSTRUCTOR_LINES")))
	if err != nil || parsed <= 0 {
		return defaultMaxCmdConstructorLines
	}
	return parsed
}
