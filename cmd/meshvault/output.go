package main

import (
	"fmt"
	"os"
	"time"

	"meshvault/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeTable(headers []string, rows [][]string, aligns []format.Alignment) error {
	return format.Table{Headers: headers, Rows: rows, Align: aligns}.Write(os.Stdout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
