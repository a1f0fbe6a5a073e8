// pycembed - generate Go source embedding a compiled module container
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/tliron/commonlog"

	"github.com/minipy/pyc/pycfile"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("pycembed")

func main() {
	pkgName := flag.String("pkg", "main", "Package name for the generated file")
	varName := flag.String("var", "Module", "Accessor name for the embedded container")
	outPath := flag.String("o", "", "Output path (default stdout)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pycembed [options] file.pyc\n\n")
		fmt.Fprintf(os.Stderr, "Generates a Go source file embedding the container bytes with a typed\n")
		fmt.Fprintf(os.Stderr, "accessor that decodes them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pycembed -pkg assets -var Boot -o assets/boot.go boot.pyc\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	src, err := generate(flag.Arg(0), *pkgName, *varName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *outPath == "" {
		fmt.Print(src)
		return
	}
	if err := os.WriteFile(*outPath, []byte(src), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Infof("wrote %s (%d bytes)", *outPath, len(src))
}

// generate reads a container file and renders a Go source file that embeds
// it. The container is decoded up front so broken inputs fail here instead
// of at the caller's run time.
func generate(path, pkgName, varName string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if _, err := pycfile.Decode(raw); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	constName := lowerFirst(varName) + "Hex"

	f := jen.NewFile(pkgName)
	f.HeaderComment("Code generated by pycembed. DO NOT EDIT.")
	f.Comment(fmt.Sprintf("%s holds the container from %s (%d bytes).", constName, path, len(raw)))
	f.Const().Id(constName).Op("=").Lit(hex.EncodeToString(raw))
	f.Line()
	f.Comment(fmt.Sprintf("%s decodes the embedded container.", varName))
	f.Func().Id(varName).Params().Params(
		jen.Op("*").Qual("github.com/minipy/pyc/pycfile", "File"),
		jen.Error(),
	).Block(
		jen.List(jen.Id("raw"), jen.Id("err")).Op(":=").Qual("encoding/hex", "DecodeString").Call(jen.Id(constName)),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(
			jen.Return(jen.Nil(), jen.Id("err")),
		),
		jen.Return(jen.Qual("github.com/minipy/pyc/pycfile", "Decode").Call(jen.Id("raw"))),
	)

	var sb strings.Builder
	if err := f.Render(&sb); err != nil {
		return "", fmt.Errorf("rendering: %w", err)
	}
	return sb.String(), nil
}

func lowerFirst(s string) string {
	if s == "" {
		return "embedded"
	}
	return strings.ToLower(s[:1]) + s[1:]
}
