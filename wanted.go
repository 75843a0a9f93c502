package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WantedItem is one row of the user's wanted list.
type WantedItem struct {
	Name1     string
	Name2     string
	MaxPrice  float64
	WearValue *float64 // nil when the row leaves max_wear_value blank
}

func (w WantedItem) String() string {
	wear := "None"
	if w.WearValue != nil {
		wear = strconv.FormatFloat(*w.WearValue, 'f', -1, 64)
	}
	return fmt.Sprintf("WantedItem(name1=%q, name2=%q, max_price=%v, wear_value=%s)",
		w.Name1, w.Name2, w.MaxPrice, wear)
}

var wantedColumns = []string{"name1", "name2", "max_price", "max_wear_value"}

// LoadWantedItems reads the wanted list from a CSV file.
func LoadWantedItems(path string) ([]WantedItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	items, err := ReadWantedItems(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// ReadWantedItems parses CSV with a header row naming the columns
// name1, name2, max_price and max_wear_value. Column order is free.
func ReadWantedItems(r io.Reader) ([]WantedItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("wanted list is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range wantedColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var items []WantedItem
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		maxPrice, err := strconv.ParseFloat(field(record, "max_price"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: max_price: %w", line, err)
		}

		item := WantedItem{
			Name1:    field(record, "name1"),
			Name2:    field(record, "name2"),
			MaxPrice: maxPrice,
		}
		if raw := field(record, "max_wear_value"); raw != "" {
			wear, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: max_wear_value: %w", line, err)
			}
			item.WearValue = &wear
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("wanted list has no items")
	}
	return items, nil
}

// RenderWantedTable formats the wanted list for the startup banner.
func RenderWantedTable(items []WantedItem) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Name", "Skin", "Max price", "Wear above"})
	for i, item := range items {
		wear := "-"
		if item.WearValue != nil {
			wear = strconv.FormatFloat(*item.WearValue, 'f', -1, 64)
		}
		t.AppendRow(table.Row{i + 1, item.Name1, item.Name2, item.MaxPrice, wear})
	}
	return t.Render()
}
