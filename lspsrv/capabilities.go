package lspsrv

import "github.com/gopherlsp/lspcore/document"

// serverCapabilities is derived, not hand-configured: the core only knows
// about its own text-sync handling, so every provider flag below is set by
// inspecting which request methods application code actually registered
// before initialize was dispatched.
type serverCapabilities struct {
	TextDocumentSync           int                `json:"textDocumentSync"`
	PositionEncoding           string             `json:"positionEncoding,omitempty"`
	HoverProvider              bool               `json:"hoverProvider,omitempty"`
	DefinitionProvider         bool               `json:"definitionProvider,omitempty"`
	DocumentFormattingProvider bool               `json:"documentFormattingProvider,omitempty"`
	CompletionProvider         *completionOptions `json:"completionProvider,omitempty"`
}

type completionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type serverInfoPayload struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResultPayload struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfoPayload  `json:"serverInfo"`
}

// textDocumentSyncIncremental matches LSP's TextDocumentSyncKind.Incremental
// (2), the only sync mode the document model supports.
const textDocumentSyncIncremental = 2

func (s *Session) initializeResult() any {
	caps := serverCapabilities{TextDocumentSync: textDocumentSyncIncremental}
	if s.cfg.Unit == document.Byte {
		caps.PositionEncoding = "utf-8"
	} else {
		caps.PositionEncoding = "utf-16"
	}

	for _, m := range s.dispatcher.RequestMethods() {
		switch m {
		case "textDocument/hover":
			caps.HoverProvider = true
		case "textDocument/definition":
			caps.DefinitionProvider = true
		case "textDocument/formatting":
			caps.DocumentFormattingProvider = true
		case "textDocument/completion":
			caps.CompletionProvider = &completionOptions{}
		}
	}

	return initializeResultPayload{
		Capabilities: caps,
		ServerInfo:   serverInfoPayload{Name: s.cfg.serverName(), Version: s.cfg.version()},
	}
}
