package session

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/lspsession/internal/util"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// CompletionKind is the caller-facing completion item kind.
type CompletionKind int

const (
	KindText CompletionKind = iota
	KindMethod
	KindFunction
	KindConstructor
	KindField
	KindVariable
	KindClass
	KindInterface
	KindModule
	KindProperty
	KindUnit
	KindValue
	KindEnum
	KindKeyword
	KindSnippet
	KindColor
	KindFile
	KindReference
	KindFolder
	KindEnumMember
	KindConstant
	KindStruct
	KindEvent
	KindOperator
	KindTypeParameter
)

var kindNames = [...]string{
	"Text", "Method", "Function", "Constructor", "Field", "Variable", "Class",
	"Interface", "Module", "Property", "Unit", "Value", "Enum", "Keyword",
	"Snippet", "Color", "File", "Reference", "Folder", "EnumMember",
	"Constant", "Struct", "Event", "Operator", "TypeParameter",
}

// MarshalText renders the kind by name in JSON output.
func (k CompletionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k CompletionKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Text"
}

var protocolKinds = map[protocol.CompletionItemKind]CompletionKind{
	protocol.CompletionItemKindText:          KindText,
	protocol.CompletionItemKindMethod:        KindMethod,
	protocol.CompletionItemKindFunction:      KindFunction,
	protocol.CompletionItemKindConstructor:   KindConstructor,
	protocol.CompletionItemKindField:         KindField,
	protocol.CompletionItemKindVariable:      KindVariable,
	protocol.CompletionItemKindClass:         KindClass,
	protocol.CompletionItemKindInterface:     KindInterface,
	protocol.CompletionItemKindModule:        KindModule,
	protocol.CompletionItemKindProperty:      KindProperty,
	protocol.CompletionItemKindUnit:          KindUnit,
	protocol.CompletionItemKindValue:         KindValue,
	protocol.CompletionItemKindEnum:          KindEnum,
	protocol.CompletionItemKindKeyword:       KindKeyword,
	protocol.CompletionItemKindSnippet:       KindSnippet,
	protocol.CompletionItemKindColor:         KindColor,
	protocol.CompletionItemKindFile:          KindFile,
	protocol.CompletionItemKindReference:     KindReference,
	protocol.CompletionItemKindFolder:        KindFolder,
	protocol.CompletionItemKindEnumMember:    KindEnumMember,
	protocol.CompletionItemKindConstant:      KindConstant,
	protocol.CompletionItemKindStruct:        KindStruct,
	protocol.CompletionItemKindEvent:         KindEvent,
	protocol.CompletionItemKindOperator:      KindOperator,
	protocol.CompletionItemKindTypeParameter: KindTypeParameter,
}

// completionKind maps a wire kind, falling back to KindText for missing
// or unknown values.
func completionKind(raw *int) CompletionKind {
	if raw == nil {
		return KindText
	}
	if k, ok := protocolKinds[protocol.CompletionItemKind(*raw)]; ok {
		return k
	}
	return KindText
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label         string
	Kind          CompletionKind
	Detail        string
	Documentation string
	InsertText    string
	SortText      string
	FilterText    string
}

type wireCompletionItem struct {
	Label         string          `json:"label"`
	Kind          *int            `json:"kind"`
	Detail        string          `json:"detail"`
	Documentation json.RawMessage `json:"documentation"`
	InsertText    string          `json:"insertText"`
	SortText      string          `json:"sortText"`
	FilterText    string          `json:"filterText"`
}

// decodeCompletion accepts CompletionItem[], CompletionList or null.
func decodeCompletion(raw json.RawMessage) ([]CompletionItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []CompletionItem{}, nil
	}

	var wire []wireCompletionItem
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
	} else {
		var list struct {
			IsIncomplete bool                 `json:"isIncomplete"`
			Items        []wireCompletionItem `json:"items"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		wire = list.Items
	}

	items := make([]CompletionItem, 0, len(wire))
	for _, w := range wire {
		items = append(items, CompletionItem{
			Label:         w.Label,
			Kind:          completionKind(w.Kind),
			Detail:        w.Detail,
			Documentation: markupText(w.Documentation),
			InsertText:    w.InsertText,
			SortText:      w.SortText,
			FilterText:    w.FilterText,
		})
	}
	return items, nil
}

// HoverResult is normalized hover content.
type HoverResult struct {
	Text  string
	Range *protocol.Range
}

type wireHover struct {
	Contents json.RawMessage `json:"contents"`
	Range    *protocol.Range `json:"range"`
}

func decodeHover(raw json.RawMessage) (*HoverResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var w wireHover
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &HoverResult{Text: hoverText(w.Contents), Range: w.Range}, nil
}

// hoverText flattens MarkedString, MarkupContent, a plain string, or an
// ordered array of those into one block, paragraphs separated by a blank
// line.
func hoverText(contents json.RawMessage) string {
	contents = bytes.TrimSpace(contents)
	if len(contents) == 0 {
		return ""
	}
	if contents[0] != '[' {
		return markupText(contents)
	}

	var fragments []json.RawMessage
	if err := json.Unmarshal(contents, &fragments); err != nil {
		return ""
	}
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if text := markupText(f); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// markupText extracts the text of a string or a {value} object.
func markupText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{':
		var v struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v.Value
		}
	}
	return ""
}

// Severity is a diagnostic marker severity.
type Severity int

const (
	SeverityHint Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	default:
		return "Hint"
	}
}

func markerSeverity(s *protocol.DiagnosticSeverity) Severity {
	if s == nil {
		return SeverityHint
	}
	switch *s {
	case protocol.DiagnosticSeverityError:
		return SeverityError
	case protocol.DiagnosticSeverityWarning:
		return SeverityWarning
	case protocol.DiagnosticSeverityInformation:
		return SeverityInfo
	default:
		return SeverityHint
	}
}

// Marker is a diagnostic in display coordinates: one-based lines and
// columns, end column inclusive.
type Marker struct {
	StartLineNumber int
	StartColumn     int
	EndLineNumber   int
	EndColumn       int
	Severity        Severity
	Message         string
	Source          string
	Code            string
}

// wireDiagnostic mirrors protocol.Diagnostic but keeps code raw, since
// protocol.IntegerOrString cannot be decoded into.
type wireDiagnostic struct {
	Range    protocol.Range               `json:"range"`
	Severity *protocol.DiagnosticSeverity `json:"severity,omitempty"`
	Code     json.RawMessage              `json:"code,omitempty"`
	Source   *string                      `json:"source,omitempty"`
	Message  string                       `json:"message"`
}

type wireDiagnostics struct {
	URI         protocol.DocumentUri `json:"uri"`
	Version     *protocol.UInteger   `json:"version,omitempty"`
	Diagnostics []wireDiagnostic     `json:"diagnostics"`
}

// diagnosticCode renders an "integer | string" code. Absent and null are
// empty.
func diagnosticCode(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var code string
		if err := json.Unmarshal(raw, &code); err == nil {
			return code
		}
		return ""
	}
	var code json.Number
	if err := json.Unmarshal(raw, &code); err == nil {
		return code.String()
	}
	return ""
}

func toMarker(d wireDiagnostic) Marker {
	return Marker{
		StartLineNumber: int(d.Range.Start.Line) + 1,
		StartColumn:     int(d.Range.Start.Character) + 1,
		EndLineNumber:   int(d.Range.End.Line) + 1,
		EndColumn:       int(d.Range.End.Character) + 1,
		Severity:        markerSeverity(d.Severity),
		Message:         d.Message,
		Source:          util.Deref(d.Source),
		Code:            diagnosticCode(d.Code),
	}
}

// logLevel collapses LSP message types: Error and Warning are errors,
// Info and Log are info.
func logLevel(t protocol.MessageType) LogLevel {
	switch t {
	case protocol.MessageTypeError, protocol.MessageTypeWarning:
		return LevelError
	default:
		return LevelInfo
	}
}
