package doc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Parse decodes the doc.json the probe phase writes.
func Parse(r io.Reader) (*Document, error) {
	var d Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode document tree: %w", err)
	}
	return &d, nil
}

func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
