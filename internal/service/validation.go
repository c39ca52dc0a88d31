package service

import (
	"bytes"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffContentType resolves the effective MIME type of an upload. A declared
// type wins; when the client sends nothing (or the generic octet-stream) the
// first bytes are sniffed. The returned reader replays any consumed bytes.
func sniffContentType(r io.Reader, declared string) (string, io.Reader, error) {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared, r, nil
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]

	detected := mimetype.Detect(head).String()
	detected = strings.TrimSpace(strings.Split(detected, ";")[0])

	return detected, io.MultiReader(bytes.NewReader(head), r), nil
}
