package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mogaika/odyssey_browser/pack/mdl"
	"github.com/mogaika/odyssey_browser/utils"
)

var verbose = flag.Bool("v", false, "dump every parsed model")
var roundtrip = flag.Bool("roundtrip", false, "re-serialize every model and compare the trees")
var exportDir = flag.String("export", "", "write a .glb next to parsing, into this directory")

func checkFile(mdlPath string) error {
	mdlData, err := os.ReadFile(mdlPath)
	if err != nil {
		return err
	}

	// The companion file is optional on disk; meshes that want vertex data
	// will complain on their own.
	mdxData, err := os.ReadFile(strings.TrimSuffix(mdlPath, filepath.Ext(mdlPath)) + ".mdx")
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	m, err := mdl.Decode(mdlData, mdxData)
	if err != nil {
		return err
	}

	if *verbose {
		utils.LogDump(m)
	}

	if *roundtrip {
		encodedMdl, encodedMdx, err := m.Encode(m.Version)
		if err != nil {
			return err
		}
		reparsed, err := mdl.DecodeVersion(encodedMdl, encodedMdx, m.Version)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(m, reparsed) {
			log.Printf("E %q: reparsed tree differs", mdlPath)
		}
	}

	if *exportDir != "" {
		out, err := os.Create(filepath.Join(*exportDir,
			strings.TrimSuffix(filepath.Base(mdlPath), filepath.Ext(mdlPath))+".glb"))
		if err != nil {
			return err
		}
		defer out.Close()
		if err := m.ExportGLTF(out, true); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()
	root := flag.Arg(0)
	if root == "" {
		log.Fatalf("Usage: %s [flags] dir_or_file", os.Args[0])
	}

	if *exportDir != "" {
		if err := os.MkdirAll(*exportDir, 0777); err != nil {
			log.Fatal(err)
		}
	}

	parsed, failed := 0, 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mdl") {
			return nil
		}
		if err := checkFile(path); err != nil {
			failed++
			log.Printf("E %q: %v", path, err)
		} else {
			parsed++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Parsed %d models, %d failures", parsed, failed)
}
