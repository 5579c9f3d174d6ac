package jsonrpc

import (
	"bufio"
	"fmt"
	"io"
)

// Writer writes JSON-RPC messages to an [io.Writer] using the LSP base
// protocol framing: a Content-Length header, an empty line, then the body.
//
// https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification/#baseProtocol
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a new Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes one complete JSON-RPC message body with its Content-Length
// header. It is the WriteFunc a [Dispatcher] expects: one call per message.
func (w *Writer) Write(content []byte) error {
	if _, err := fmt.Fprintf(w.w, "Content-Length: %d\r\n\r\n", len(content)); err != nil {
		return err
	}
	if _, err := w.w.Write(content); err != nil {
		return err
	}
	return w.w.Flush()
}
