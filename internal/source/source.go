// Package source turns line-oriented files into numbered translation chunks.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// LineSource reads groups of up to chunkSize lines. It is not safe for
// concurrent use; Feeder serializes access to it.
type LineSource struct {
	reader     *bufio.Reader
	closer     io.Closer
	chunkSize  int
	chunkCount uint64
	readCount  uint64
	eof        bool
}

// Open opens path and skips the first skipLines raw lines.
func Open(path string, chunkSize int, skipLines uint64) (*LineSource, error) {
	// #nosec G304 -- the input path is chosen by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	src, err := NewLineSource(f, chunkSize, skipLines)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// NewLineSource wraps r and skips the first skipLines raw lines. Skipping past
// the end of the input is not an error; the first Next call reports EOF.
func NewLineSource(r io.Reader, chunkSize int, skipLines uint64) (*LineSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	s := &LineSource{
		reader:    bufio.NewReader(r),
		chunkSize: chunkSize,
	}
	for i := uint64(0); i < skipLines; i++ {
		if _, ok, err := s.readLine(); err != nil {
			return nil, fmt.Errorf("skip line %d: %w", i+1, err)
		} else if !ok {
			break
		}
	}
	return s, nil
}

// Next returns the next non-blank chunk, translate.ErrEndOfFile once the input
// is exhausted, or a wrapped read error.
func (s *LineSource) Next() (translate.Chunk, error) {
	for {
		s.readCount++
		lines := make([]string, 0, s.chunkSize)
		for len(lines) < s.chunkSize {
			line, ok, err := s.readLine()
			if err != nil {
				return translate.Chunk{}, fmt.Errorf("read chunk: %w", err)
			}
			if !ok {
				break
			}
			lines = append(lines, strings.TrimRightFunc(line, unicode.IsSpace))
		}
		if len(lines) == 0 {
			return translate.Chunk{}, translate.ErrEndOfFile
		}
		if allBlank(lines) {
			continue
		}
		s.chunkCount++
		return translate.Chunk{
			Sequence:     s.chunkCount,
			ResumeOffset: s.readCount,
			Text:         strings.Join(lines, "\n"),
		}, nil
	}
}

// ChunkCount reports how many non-blank chunks have been emitted.
func (s *LineSource) ChunkCount() uint64 {
	return s.chunkCount
}

// ReadCount reports how many read attempts have been made, blank groups included.
func (s *LineSource) ReadCount() uint64 {
	return s.readCount
}

// Close releases the underlying file, if any.
func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close input: %w", err)
	}
	s.closer = nil
	return nil
}

// readLine returns one raw line without its terminator. ok is false at EOF.
func (s *LineSource) readLine() (string, bool, error) {
	if s.eof {
		return "", false, nil
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, err
		}
		s.eof = true
		if line == "" {
			return "", false, nil
		}
	}
	return strings.TrimSuffix(line, "\n"), true, nil
}

func allBlank(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}
