package main

import (
	"encoding/json"
	"fmt"

	"github.com/gopherlsp/lspcore/lspsrv"
)

// registerHover installs a purely illustrative textDocument/hover handler:
// it reports the line and character the editor asked about and nothing
// else. It exists to prove the handler-registration surface works end to
// end, not to be a useful hover provider.
func registerHover(s *lspsrv.Session) {
	s.Dispatcher().AddRequestHandler("textDocument/hover", func(params json.RawMessage) (any, error) {
		var p struct {
			Position struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"position"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]any{
			"contents": map[string]any{
				"kind":  "plaintext",
				"value": fmt.Sprintf("lspcored: line %d, character %d", p.Position.Line, p.Position.Character),
			},
		}, nil
	})
}
