package main

import (
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sensiblebit/cmsresolve"
	"github.com/sensiblebit/cmsresolve/internal/cms"
)

// readInput reads path, or stdin when path is "-". Reading from an
// interactive terminal is refused.
func readInput(path string) ([]byte, error) {
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return data, nil
	}
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return nil, errors.New("refusing to read from a terminal; pipe input or pass a file")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}

// readMessage reads and parses a CMS message given as DER or as a PEM
// "CMS" or "PKCS7" block.
func readMessage(path string) (*cms.Message, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if cmsresolve.IsPEM(data) {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("decoding PEM in %s", path)
		}
		if block.Type != "CMS" && block.Type != "PKCS7" {
			return nil, fmt.Errorf("unexpected PEM block %q in %s", block.Type, path)
		}
		data = block.Bytes
	}
	msg, err := cms.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return msg, nil
}
