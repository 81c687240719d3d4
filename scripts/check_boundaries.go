package main

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layer rules for contexts/<context>/<service>/<layer>. Test files are not
// checked.

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// thirdPartyAllowed lists non-module imports each layer may use.
var thirdPartyAllowed = map[string][]string{
	"application": {"golang.org/x/sync"},
}

func main() {
	module, err := modulePath("go.mod")
	if err != nil {
		fmt.Println("read go.mod:", err)
		os.Exit(2)
	}
	violations := collectViolations("contexts", module)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func modulePath(goMod string) (string, error) {
	file, err := os.Open(goMod)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no module directive in %s", goMod)
}

func collectViolations(root string, module string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}

		service := fmt.Sprintf("%s/contexts/%s/%s", module, parts[1], parts[2])
		violations = append(violations, validateFile(path, normalized, parts[3], module, service)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, module string, service string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalizedPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	report := func(line int, importPath string, rule string) {
		violations = append(violations, violation{File: normalizedPath, Line: line, Import: importPath, Rule: rule})
	}

	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		line := fset.Position(imp.Pos()).Line

		if hasPrefix(importPath, module+"/contexts") && !hasPrefix(importPath, service) {
			report(line, importPath, "cross-service imports are forbidden")
		}

		var allowed []string
		switch layer {
		case "domain":
			allowed = []string{service + "/domain"}
		case "ports":
			allowed = []string{service + "/domain", service + "/ports"}
		case "application":
			allowed = []string{service + "/application", service + "/domain", service + "/ports"}
		default:
			continue
		}

		if strings.Contains(importPath, "/adapters/") {
			report(line, importPath, layer+" must not import adapters")
		}
		if hasPrefix(importPath, module+"/internal") || hasPrefix(importPath, module+"/cmd") {
			report(line, importPath, layer+" must not import runtime infrastructure")
		}
		allowed = append(allowed, thirdPartyAllowed[layer]...)
		if !isStdlib(importPath, module) && !isAllowed(importPath, allowed) {
			report(line, importPath, layer+" import is outside explicit allowlist")
		}
	}

	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string, module string) bool {
	if hasPrefix(importPath, module) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
