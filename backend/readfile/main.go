// Command readfile prints stored documents as JSON. Arguments are document
// IDs or paths of document files; without arguments every document is
// printed. Set DOCSHEET_MASTER_KEY to read an encrypted data dir.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/docsheet/backend"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory for document data")
)

func main() {
	flag.Parse()
	masterKey, err := backend.LoadMasterKey(*dataDir, os.Getenv("DOCSHEET_MASTER_KEY"), false)
	if err != nil {
		log.Fatalf("Critical Security Error: %v", err)
	}
	if masterKey == nil {
		log.Println("Warning: No DOCSHEET_MASTER_KEY provided. Reading UNENCRYPTED data.")
	}
	ds := backend.NewDocumentStore(*dataDir, storage.New(*dataDir, masterKey))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	show := func(name string, doc *backend.Document) {
		fmt.Printf("=========== %s ===========\n", name)
		if err := enc.Encode(doc); err != nil {
			log.Printf("JSON: %s: %v", name, err)
		}
	}

	if flag.NArg() == 0 {
		for doc, err := range ds.ListAllDocuments() {
			if err != nil {
				log.Printf("ListAllDocuments: %v", err)
				continue
			}
			show(doc.Path, doc)
		}
		return
	}

	for _, arg := range flag.Args() {
		id := strings.TrimSuffix(filepath.Base(arg), ".json")
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
		doc, err := ds.LoadDocument(id)
		if err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		show(id, doc)
	}
}
