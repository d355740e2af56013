package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	glua "github.com/yuin/gopher-lua"
	"golang.org/x/term"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/bind"
	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/lua"
	"github.com/wippyai/mirror/wasm"
)

func main() {
	var (
		script      = flag.String("script", "", "Lua script to run against the demo classes")
		list        = flag.Bool("list", false, "List the demo classes and their members, then exit")
		witOut      = flag.Bool("wit", false, "Print the WIT surface of the demo classes, then exit")
		interactive = flag.Bool("i", false, "Interactive console (default on a terminal)")
	)
	flag.Parse()

	if err := run(*script, *list, *witOut, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(script string, list, witOut, interactive bool) error {
	classes := demoClasses()

	if list {
		out, err := renderListing(classes)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	if witOut {
		doc, err := renderSurface(classes)
		if err != nil {
			return err
		}
		fmt.Print(doc)
		return nil
	}

	if script != "" {
		data, err := os.ReadFile(script)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		return runSource(classes, string(data), script)
	}

	if interactive || term.IsTerminal(int(os.Stdin.Fd())) {
		return runInteractive(classes)
	}

	// Piped input doubles as a script.
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return runSource(classes, string(data), "stdin")
}

// newState opens a Lua state with every demo class bound.
func newState(classes []*mirror.Class) (*glua.LState, *lua.Binder, error) {
	L := glua.NewState()
	b := lua.NewBinder(L)
	for _, class := range classes {
		if _, err := b.Bind(class); err != nil {
			b.Close()
			L.Close()
			return nil, nil, err
		}
	}
	return L, b, nil
}

func runSource(classes []*mirror.Class, src, name string) error {
	L, b, err := newState(classes)
	if err != nil {
		return err
	}
	defer L.Close()
	defer b.Close()

	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return err
	}
	L.Push(fn)
	return L.PCall(0, glua.MultRet, nil)
}

// renderSurface prints the demo classes as WIT resources.
func renderSurface(classes []*mirror.Class) (string, error) {
	cache := descriptor.NewCache()
	descs := make([]*descriptor.Class, len(classes))
	for i, class := range classes {
		d, err := cache.Describe(class)
		if err != nil {
			return "", err
		}
		descs[i] = d
	}
	return wasm.RenderWIT(descs...)
}

// renderListing prints one block per class: constructors, fields, then
// methods and statics under their exported names.
func renderListing(classes []*mirror.Class) (string, error) {
	cache := descriptor.NewCache()
	var b strings.Builder

	for _, class := range classes {
		d, err := cache.Describe(class)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "%s (%s)\n", d.Name, d.GoType.Name())
		b.WriteString("  new()\n")
		for i := 0; i < d.ConstructorCount(); i++ {
			fmt.Fprintf(&b, "  new(%s)\n", paramList(d.ConstructorAt(i).Params))
		}
		for _, f := range d.Fields {
			ro := ""
			if f.ReadOnly {
				ro = "  read-only"
			}
			fmt.Fprintf(&b, "  %s: %s%s\n", f.Name, specStr(f.Spec), ro)
		}

		names, err := bind.ExportedNames(d.Name, d.Methods)
		if err != nil {
			return "", err
		}
		for i, m := range d.Methods {
			fmt.Fprintf(&b, "  %s(%s)%s\n", names[i], paramList(m.Params), resultStr(m.Result))
		}

		statics, err := bind.ExportedNames(d.Name, d.Statics)
		if err != nil {
			return "", err
		}
		for i, m := range d.Statics {
			fmt.Fprintf(&b, "  %s(%s)%s  static\n", statics[i], paramList(m.Params), resultStr(m.Result))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func paramList(params []*convert.Spec) string {
	var parts []string
	for i, p := range params {
		parts = append(parts, fmt.Sprintf("arg%d: %s", i, specStr(p)))
	}
	return strings.Join(parts, ", ")
}

func resultStr(s *convert.Spec) string {
	if s == nil {
		return ""
	}
	return " -> " + specStr(s)
}

func specStr(s *convert.Spec) string {
	if s.GoType.Name() != "" && s.GoType.PkgPath() != "" {
		return s.GoType.Name()
	}
	return s.GoType.String()
}
