package thumbnail

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNoEmbedded is returned when a file carries no usable embedded image.
var ErrNoEmbedded = errors.New("no embedded thumbnail")

// HasEmbedded reports whether files with ext may carry an embedded thumbnail.
func HasEmbedded(ext string) bool {
	switch strings.ToLower(ext) {
	case "3mf", "gcode":
		return true
	default:
		return false
	}
}

// ExtractEmbedded returns the PNG thumbnail embedded in a 3MF or g-code payload.
// G-code is scanned line by line; a 3MF archive is read into memory.
func ExtractEmbedded(ext string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(ext) {
	case "3mf":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read 3mf: %w", err)
		}
		return extract3MF(data)
	case "gcode":
		return extractGCode(r)
	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrNoEmbedded)
	}
}

var threeMFThumbnails = []string{"metadata/thumbnail.png", "metadata/plate_1.png"}

func extract3MF(data []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read 3mf: %w", err)
	}

	byName := map[string]*zip.File{}
	var fallback *zip.File
	for _, entry := range archive.File {
		name := strings.ToLower(strings.TrimPrefix(entry.Name, "/"))
		byName[name] = entry
		if fallback == nil && path.Dir(name) == "metadata" && path.Ext(name) == ".png" {
			fallback = entry
		}
	}

	pick := fallback
	for _, name := range threeMFThumbnails {
		if entry, ok := byName[name]; ok {
			pick = entry
			break
		}
	}
	if pick == nil {
		return nil, ErrNoEmbedded
	}

	rc, err := pick.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pick.Name, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", pick.Name, err)
	}
	return buf.Bytes(), nil
}

// extractGCode decodes "; thumbnail begin WxH LEN" blocks and keeps the largest image.
func extractGCode(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		best     []byte
		bestArea int
		inBlock  bool
		area     int
		encoded  strings.Builder
	)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), ";"))
		switch {
		case strings.HasPrefix(line, "thumbnail begin"):
			inBlock = true
			area = parseArea(strings.Fields(line))
			encoded.Reset()
		case strings.HasPrefix(line, "thumbnail end"):
			if !inBlock {
				continue
			}
			inBlock = false
			if area <= bestArea && best != nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(encoded.String())
			if err != nil {
				continue
			}
			best, bestArea = decoded, area
		case inBlock:
			encoded.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan gcode: %w", err)
	}
	if best == nil {
		return nil, ErrNoEmbedded
	}
	return best, nil
}

// parseArea reads WxH from the fields of a thumbnail begin line.
func parseArea(fields []string) int {
	if len(fields) < 3 {
		return 0
	}
	w, h, ok := strings.Cut(fields[2], "x")
	if !ok {
		return 0
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return width * height
}
