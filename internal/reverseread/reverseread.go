// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package reverseread reads the last lines of a file by seeking backward in
// fixed-size blocks, without loading the whole file into memory.
package reverseread

import (
	"os"
	"strings"
)

// blockSize is the backward read chunk size.
const blockSize = 8192

// LastLine returns the last line of path, ignoring a single trailing line
// terminator, or ("", false) on any I/O error or empty file. A blank last
// line (e.g. a file ending in "\n\n") is returned as ("", true).
func LastLine(path string) (string, bool) {
	lines := LastNLines(path, 1)
	if len(lines) == 0 {
		return "", false
	}
	return lines[0], true
}

// LastNLines returns up to n of the most recent lines in path, most-recent
// first. It never returns an error; any I/O failure yields an empty slice.
// Both CRLF and LF line terminators are tolerated and stripped, and a single
// trailing terminator at end-of-file never produces a spurious empty line.
func LastNLines(path string, n int) []string {
	if n <= 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	size := info.Size()
	if size == 0 {
		return nil
	}

	end := trimTrailingTerminator(f, size)
	if end <= 0 {
		return nil
	}

	var (
		buf  []byte
		pos  = end
		lines []string
	)

	for pos > 0 && len(lines) < n {
		readSize := int64(blockSize)
		if readSize > pos {
			readSize = pos
		}
		pos -= readSize

		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, pos); err != nil {
			return linesOrNil(lines)
		}
		buf = append(chunk, buf...)

		for len(lines) < n {
			idx := lastIndexByte(buf, '\n')
			if idx < 0 {
				break
			}
			lines = append(lines, strings.TrimSuffix(string(buf[idx+1:]), "\r"))
			buf = buf[:idx]
		}
	}

	if pos == 0 && len(lines) < n && len(buf) > 0 {
		lines = append(lines, strings.TrimSuffix(string(buf), "\r"))
	}

	return linesOrNil(lines)
}

// trimTrailingTerminator returns the logical end-of-content offset, with one
// trailing "\n" or "\r\n" excluded so it doesn't read back as an empty line.
func trimTrailingTerminator(f *os.File, size int64) int64 {
	n := int64(2)
	if n > size {
		n = size
	}
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil {
		return size
	}
	end := size
	if len(tail) > 0 && tail[len(tail)-1] == '\n' {
		end--
		if len(tail) == 2 && tail[0] == '\r' {
			end--
		}
	}
	return end
}

func lastIndexByte(buf []byte, b byte) int {
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] == b {
			return i
		}
	}
	return -1
}

func linesOrNil(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	return lines
}
