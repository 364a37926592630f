// slotlayout recomputes a contract's storage layout from a declaration
// file and prints the field -> slot assignment. External tools that read
// the persisted key/value store use the same declaration order and packing
// rule, so this output is the layout contract.
//
// The declaration file is a JSON array of {"name": ..., "type": ...}
// entries, types in the textual grammar storage.ParseType accepts.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/inconshreveable/log15"

	"github.com/clydemeng/contractkit/storage"
)

func main() {
	v, err := getViper()
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}

	path := v.GetString(layoutFileKey)
	if path == "" {
		fmt.Println("usage: slotlayout --layout-file <declarations.json>")
		os.Exit(1)
	}
	lg := log.New("module", "slotlayout")

	raw, err := os.ReadFile(path)
	if err != nil {
		lg.Crit("cannot read declaration file", "path", path, "err", err)
		os.Exit(1)
	}

	var decls []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &decls); err != nil {
		lg.Crit("malformed declaration file", "path", path, "err", err)
		os.Exit(1)
	}

	defs := make([]storage.FieldDef, 0, len(decls))
	for _, d := range decls {
		t, err := storage.ParseType(d.Type)
		if err != nil {
			lg.Crit("bad field type", "field", d.Name, "err", err)
			os.Exit(1)
		}
		defs = append(defs, storage.Field(d.Name, t))
	}

	layout, err := allocate(defs)
	if err != nil {
		lg.Crit("layout allocation failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("%-24s %-28s %-10s %-7s %s\n", "FIELD", "TYPE", "SLOT", "OFFSET", "WIDTH")
	for _, f := range layout.Fields() {
		fmt.Printf("%-24s %-28s %-10s %-7d %d\n",
			f.Name, f.Type, f.Ref.Slot.Dec(), f.Ref.Offset, f.Ref.Width)
	}
	fmt.Printf("\n%d base slot(s) consumed\n", layout.Slots())
}

// allocate runs the allocator, turning a LayoutError panic into an error
// the caller reports instead of a stack trace.
func allocate(defs []storage.FieldDef) (layout *storage.Layout, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return storage.NewLayout(defs...), nil
}
