package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"

	"github.com/akhildatla/pm0/pkg/vm"
)

// JSON-specific errors
var (
	ErrEmptyJSON   = errors.New("empty JSON file")
	ErrInvalidJSON = errors.New("invalid JSON format")
)

// ReadJSON reads a JSON file of objects and returns a DataFrame.
// Both JSON lines ({...} per line) and a single array of objects are
// accepted; values arrive as strings.
func ReadJSON(path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyJSON
	}
	if data[0] == '[' {
		if data, err = arrayToLines(data); err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, ErrEmptyJSON
		}
	}

	reader := bytes.NewReader(data)
	ctx := context.Background()

	df, err := imports.LoadFromJSON(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyJSON
	}

	return df, nil
}

// arrayToLines rewrites [{...},{...}] as one object per line, the form
// imports.LoadFromJSON decodes.
func arrayToLines(data []byte) ([]byte, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var buf bytes.Buffer
	for i, row := range rows {
		row = bytes.TrimSpace(row)
		if len(row) == 0 || row[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrInvalidJSON, i)
		}
		if err := json.Compact(&buf, row); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// LoadJSON reads a program table from JSON objects with op, r, l and m
// fields.
func LoadJSON(path string) (*vm.Program, error) {
	df, err := ReadJSON(path)
	if err != nil {
		return nil, err
	}
	p, err := FromFrame(df)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
