package lspsrv

import "github.com/gopherlsp/lspcore/document"

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentItem struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type didSaveParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type rangeJSON struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

// contentChangeEvent mirrors LSP's TextDocumentContentChangeEvent, which is
// a union of "range + text" (incremental) and "text" alone (full replace).
type contentChangeEvent struct {
	Range *rangeJSON `json:"range,omitempty"`
	Text  string     `json:"text"`
}

func (cc contentChangeEvent) toChange(unit document.Unit) document.Change {
	if cc.Range == nil {
		return document.Change{Text: cc.Text}
	}
	return document.Change{
		Range: &document.Range{
			Start: document.Position{Line: cc.Range.Start.Line, Character: cc.Range.Start.Character, Unit: unit},
			End:   document.Position{Line: cc.Range.End.Line, Character: cc.Range.End.Character, Unit: unit},
		},
		Text: cc.Text,
	}
}

type didChangeParams struct {
	TextDocument   textDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChangeEvent   `json:"contentChanges"`
}
