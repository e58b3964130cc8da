package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const (
	// Buffer size for streaming (64KB)
	streamBufferSize = 64 * 1024
)

// streamFile serves a media file with caching and Range support so the
// shell's media elements can seek freely.
func (s *EditorServer) streamFile(w http.ResponseWriter, r *http.Request, filePath string, contentType string) error {
	stat, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("error reading file info: %v", err)
	}

	fileSize := stat.Size()
	modTime := stat.ModTime().Unix()

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}
	defer file.Close()

	// Set caching headers
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", fmt.Sprintf(`"%d-%d"`, modTime, fileSize))

	if s.checkNotModified(w, r, modTime, fileSize) {
		return nil
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		s.handleRangeRequest(w, r, file, fileSize, rangeHeader)
		return nil
	}

	// Stream entire file with optimized buffering
	w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))

	bufferedReader := bufio.NewReaderSize(file, streamBufferSize)
	buffer := make([]byte, streamBufferSize)

	_, err = io.CopyBuffer(w, bufferedReader, buffer)
	if err != nil {
		return fmt.Errorf("error streaming file: %v", err)
	}

	return nil
}

// checkNotModified checks if the client has a cached version
func (s *EditorServer) checkNotModified(w http.ResponseWriter, r *http.Request, modTime, fileSize int64) bool {
	etag := fmt.Sprintf(`"%d-%d"`, modTime, fileSize)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

// handleRangeRequest implements simple single-range byte serving for seeking.
func (s *EditorServer) handleRangeRequest(w http.ResponseWriter, _ *http.Request, file *os.File, fileSize int64, rangeHeader string) {
	// Parse range header (e.g., "bytes=0-1023")
	ranges := strings.TrimPrefix(rangeHeader, "bytes=")
	rangeParts := strings.Split(ranges, "-")

	start, err := strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		start = 0
	}

	var end int64
	if len(rangeParts) > 1 && rangeParts[1] != "" {
		end, err = strconv.ParseInt(rangeParts[1], 10, 64)
		if err != nil {
			end = fileSize - 1
		}
	} else {
		end = fileSize - 1
	}

	// Validate range
	if start < 0 || end >= fileSize || start > end {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", contentLength))
	w.WriteHeader(http.StatusPartialContent)

	file.Seek(start, io.SeekStart)
	io.CopyN(w, file, contentLength)
}
