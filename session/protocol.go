package session

import (
	"bytes"
	"encoding/json"
	"os"
)

// LSP methods used by the session.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
	MethodCancel      = "$/cancelRequest"

	MethodDidOpen    = "textDocument/didOpen"
	MethodDidChange  = "textDocument/didChange"
	MethodCompletion = "textDocument/completion"
	MethodHover      = "textDocument/hover"

	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodLogMessage         = "window/logMessage"
	MethodShowMessage        = "window/showMessage"
	MethodProgress           = "$/progress"
	MethodLogTrace           = "$/logTrace"
	MethodTelemetryEvent     = "telemetry/event"

	MethodConfiguration        = "workspace/configuration"
	MethodApplyEdit            = "workspace/applyEdit"
	MethodWorkDoneProgress     = "window/workDoneProgress/create"
	MethodShowMessageRequest   = "window/showMessageRequest"
	MethodRegisterCapability   = "client/registerCapability"
	MethodUnregisterCapability = "client/unregisterCapability"
)

// TextDocumentSyncKind is how the server wants document changes sent.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// Capabilities is the negotiated snapshot from the initialize response.
// It is never modified after the handshake publishes it.
type Capabilities struct {
	Completion                  bool
	CompletionTriggerCharacters []string
	Hover                       bool
	SignatureHelp               bool
	Definition                  bool
	References                  bool
	Formatting                  bool
	TextDocumentSync            TextDocumentSyncKind
	OpenClose                   bool

	ServerName    string
	ServerVersion string

	// Raw is the server's capabilities object as received.
	Raw json.RawMessage
}

type initializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo,omitempty"`
}

type serverCapabilities struct {
	CompletionProvider *struct {
		TriggerCharacters []string `json:"triggerCharacters"`
	} `json:"completionProvider"`
	HoverProvider              json.RawMessage `json:"hoverProvider"`
	SignatureHelpProvider      json.RawMessage `json:"signatureHelpProvider"`
	DefinitionProvider         json.RawMessage `json:"definitionProvider"`
	ReferencesProvider         json.RawMessage `json:"referencesProvider"`
	DocumentFormattingProvider json.RawMessage `json:"documentFormattingProvider"`
	TextDocumentSync           json.RawMessage `json:"textDocumentSync"`
}

// providerEnabled reads a "boolean | Options" capability: absent, null
// and false are disabled, true and any object are enabled.
func providerEnabled(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return false
	}
	return true
}

func parseCapabilities(result initializeResult) (*Capabilities, error) {
	caps := &Capabilities{Raw: result.Capabilities}
	if result.ServerInfo != nil {
		caps.ServerName = result.ServerInfo.Name
		caps.ServerVersion = result.ServerInfo.Version
	}
	if !providerEnabled(result.Capabilities) {
		return caps, nil
	}

	var sc serverCapabilities
	if err := json.Unmarshal(result.Capabilities, &sc); err != nil {
		return nil, err
	}

	if sc.CompletionProvider != nil {
		caps.Completion = true
		caps.CompletionTriggerCharacters = sc.CompletionProvider.TriggerCharacters
	}
	caps.Hover = providerEnabled(sc.HoverProvider)
	caps.SignatureHelp = providerEnabled(sc.SignatureHelpProvider)
	caps.Definition = providerEnabled(sc.DefinitionProvider)
	caps.References = providerEnabled(sc.ReferencesProvider)
	caps.Formatting = providerEnabled(sc.DocumentFormattingProvider)

	// textDocumentSync is either a kind number or an options object
	sync := bytes.TrimSpace(sc.TextDocumentSync)
	switch {
	case len(sync) == 0 || bytes.Equal(sync, []byte("null")):
	case sync[0] == '{':
		var opts struct {
			OpenClose bool                 `json:"openClose"`
			Change    TextDocumentSyncKind `json:"change"`
		}
		if err := json.Unmarshal(sync, &opts); err == nil {
			caps.OpenClose = opts.OpenClose
			caps.TextDocumentSync = opts.Change
		}
	default:
		var kind TextDocumentSyncKind
		if err := json.Unmarshal(sync, &kind); err == nil {
			caps.TextDocumentSync = kind
			caps.OpenClose = kind != SyncNone
		}
	}

	return caps, nil
}

// initializeParams marshals the initialize request. rootUri and
// workspaceFolders are explicitly null when no root is configured.
type initializeParams struct {
	ProcessID        int               `json:"processId"`
	ClientInfo       clientInfo        `json:"clientInfo"`
	RootURI          *string           `json:"rootUri"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders"`
	Capabilities     map[string]any    `json:"capabilities"`
	Trace            string            `json:"trace"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

func (s *Session) initializeParams() initializeParams {
	params := initializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   clientInfo{Name: s.opts.ClientName, Version: s.opts.ClientVersion},
		Capabilities: clientCapabilities(),
		Trace:        s.opts.Trace,
	}
	if s.opts.RootURI != "" {
		root := s.opts.RootURI
		params.RootURI = &root
		params.WorkspaceFolders = []workspaceFolder{{URI: root, Name: s.opts.ClientName}}
	}
	return params
}

func completionItemKinds() []int {
	kinds := make([]int, 0, len(protocolKinds))
	for k := 1; k <= len(protocolKinds); k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// clientCapabilities declares what this client understands.
func clientCapabilities() map[string]any {
	markup := []string{"markdown", "plaintext"}
	return map[string]any{
		"textDocument": map[string]any{
			"synchronization": map[string]any{
				"dynamicRegistration": false,
				"didSave":             true,
			},
			"completion": map[string]any{
				"completionItem": map[string]any{
					"snippetSupport":          true,
					"commitCharactersSupport": true,
					"documentationFormat":     markup,
					"deprecatedSupport":       true,
					"preselectSupport":        true,
				},
				"completionItemKind": map[string]any{
					"valueSet": completionItemKinds(),
				},
				"contextSupport": true,
			},
			"hover": map[string]any{
				"contentFormat": markup,
			},
			"signatureHelp": map[string]any{
				"signatureInformation": map[string]any{
					"documentationFormat": markup,
					"parameterInformation": map[string]any{
						"labelOffsetSupport": true,
					},
				},
			},
			"publishDiagnostics": map[string]any{
				"relatedInformation": true,
				"tagSupport": map[string]any{
					"valueSet": []int{1, 2},
				},
			},
			"definition": map[string]any{
				"linkSupport": true,
			},
			"references":      map[string]any{},
			"formatting":      map[string]any{},
			"rangeFormatting": map[string]any{},
		},
		"workspace": map[string]any{
			"workspaceFolders":       true,
			"configuration":          true,
			"applyEdit":              true,
			"didChangeConfiguration": map[string]any{"dynamicRegistration": false},
		},
		"window": map[string]any{
			"workDoneProgress": true,
			"showMessage":      map[string]any{},
		},
	}
}
