// pycdump - inspect compiled module containers
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/minipy/pyc/bytecode"
	"github.com/minipy/pyc/inspect"
	"github.com/minipy/pyc/manifest"
	"github.com/minipy/pyc/marshal"
	"github.com/minipy/pyc/pycfile"
	"github.com/minipy/pyc/store"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("pycdump")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	depth := flag.Int("depth", 0, "Decode depth limit (0 = manifest default)")
	cborOut := flag.Bool("cbor", false, "Write the inspection report as canonical CBOR to stdout")
	check := flag.Bool("check", false, "Verify LOAD_CONST operands against constant pools")
	cache := flag.Bool("cache", false, "Record each payload in the compile cache, keyed by the sibling .py source when present")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pycdump [options] file.pyc...\n\n")
		fmt.Fprintf(os.Stderr, "Decodes compiled module containers and prints header fields and a\n")
		fmt.Fprintf(os.Stderr, "disassembly listing for each code object.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pycdump example.pyc            # Text dump\n")
		fmt.Fprintf(os.Stderr, "  pycdump -check example.pyc     # Dump and validate constant references\n")
		fmt.Fprintf(os.Stderr, "  pycdump -cbor example.pyc > r  # Machine-readable report\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	maxDepth := m.Codec.MaxDepth
	if *depth > 0 {
		maxDepth = *depth
	}
	log.Infof("decode depth limit: %d", maxDepth)

	var st *store.Store
	if *cache {
		st, err = store.Open(m.CachePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		log.Infof("cache %s (generation %s)", m.CachePath(), st.Generation())
	}

	exitCode := 0
	for _, path := range paths {
		if err := dumpFile(path, maxDepth, *cborOut, *check, st); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func dumpFile(path string, maxDepth int, cborOut, check bool, st *store.Store) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	f, err := pycfile.DecodeWithDepth(raw, maxDepth)
	if err != nil {
		return err
	}
	log.Infof("%s: %d bytes, source size %d", path, len(raw), f.SourceSize)

	if st != nil {
		source, fromSource := cacheKeySource(path, raw)
		key, err := st.Put(source, raw[pycfile.HeaderSize:])
		if err != nil {
			return fmt.Errorf("caching payload: %w", err)
		}
		if fromSource {
			log.Infof("cached %s under source hash %x", path, key[:8])
		} else {
			log.Infof("cached %s under container hash %x (no sibling source)", path, key[:8])
		}
	}

	if check {
		if err := inspect.CheckConsts(f.Code); err != nil {
			return err
		}
	}

	if cborOut {
		report := inspect.Describe(marshal.NewCode(f.Code))
		data, err := inspect.MarshalReport(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	fmt.Printf("%s\n", path)
	fmt.Printf("  magic:       %d\n", pycfile.MagicNumber)
	fmt.Printf("  mod time:    %d\n", f.ModTime)
	fmt.Printf("  source size: %d\n", f.SourceSize)
	return dumpCode(f.Code, "  ")
}

// cacheKeySource picks the bytes that key a cache entry: the sibling
// source file (foo.pyc → foo.py) when it exists, so a compiler looking
// up by source text will hit, otherwise the container bytes themselves.
// The second return reports whether a source file was found.
func cacheKeySource(path string, raw []byte) ([]byte, bool) {
	srcPath := strings.TrimSuffix(path, ".pyc") + ".py"
	if srcPath != path {
		if src, err := os.ReadFile(srcPath); err == nil {
			return src, true
		}
	}
	return raw, false
}

func dumpCode(c *marshal.Code, indent string) error {
	name := c.Name
	if name == "" {
		name = "<module>"
	}
	fmt.Printf("%scode %s (%s:%d)\n", indent, name, c.Filename, c.FirstLineNo)
	fmt.Printf("%s  args=%d kwonly=%d locals=%d stack=%d flags=%#x\n",
		indent, c.ArgCount, c.KwOnlyArgCount, c.NLocals, c.StackSize, c.Flags)
	if len(c.Names) > 0 {
		fmt.Printf("%s  names: %v\n", indent, c.Names)
	}
	if len(c.VarNames) > 0 {
		fmt.Printf("%s  varnames: %v\n", indent, c.VarNames)
	}

	listing, err := bytecode.Listing(c.CodeBytes)
	if err != nil {
		return fmt.Errorf("disassembling %s: %w", name, err)
	}
	for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
		fmt.Printf("%s  %s\n", indent, line)
	}

	for i, cv := range c.Consts {
		fmt.Printf("%s  const %d: %s\n", indent, i, cv.String())
		if cv.Kind() == marshal.KindCode {
			if err := dumpCode(cv.Code(), indent+"  "); err != nil {
				return err
			}
		}
	}
	return nil
}
