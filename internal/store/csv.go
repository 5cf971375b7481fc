package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

const csvTimeLayout = "2006-01-02T15:04:05"

// CSV persists samples as rows in a single append-only file:
//
//	timestamp,power,is_valid
//
// One file holds one capture; there is no rotation.
type CSV struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

// Row is a single sample loaded back from a CSV file.
type Row struct {
	Time  time.Time
	Watts float64
	Valid bool
}

// NewCSV returns a CSV store writing to path. The file is opened by
// Init.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Init opens the file for appending and writes the header when the
// file is empty.
func (c *CSV) Init(ctx context.Context) error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrUnavailable, c.path, err)
	}
	c.file = f
	c.writer = csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.Size() == 0 {
		return c.writeHeader()
	}
	return nil
}

// Reset truncates the file, keeping only the header.
func (c *CSV) Reset(ctx context.Context) error {
	if c.file == nil {
		return fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	if err := c.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncating %s: %v", ErrUnavailable, c.path, err)
	}
	return c.writeHeader()
}

func (c *CSV) writeHeader() error {
	c.writer.Write([]string{"timestamp", "power", "is_valid"})
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrUnavailable, err)
	}
	return nil
}

// Append writes one sample row. Timestamps are stored in UTC.
func (c *CSV) Append(ctx context.Context, t time.Time, watts float64, valid bool) error {
	if c.writer == nil {
		return fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	c.writer.Write([]string{
		t.UTC().Format(csvTimeLayout),
		fmt.Sprintf("%.2f", watts),
		strconv.FormatBool(valid),
	})
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close flushes and closes the file.
func (c *CSV) Close() error {
	if c.writer != nil {
		c.writer.Flush()
	}
	if c.file != nil {
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}

// LoadFile reads all samples from a CSV file.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "timestamp" {
			continue
		}
		if len(rec) < 3 {
			continue
		}

		t, err := time.Parse(csvTimeLayout, rec[0])
		if err != nil {
			continue
		}
		watts, _ := strconv.ParseFloat(rec[1], 64)
		valid, _ := strconv.ParseBool(rec[2])

		rows = append(rows, Row{Time: t, Watts: watts, Valid: valid})
	}
	return rows, nil
}
