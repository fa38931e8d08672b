package session

import (
	"encoding/json"

	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/internal/util"
	"github.com/teranos/lspsession/jsonrpc"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/transport"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type notificationHandler func(params json.RawMessage) error

// serverRequestHandler answers a request initiated by the server. A nil
// result is sent as JSON null.
type serverRequestHandler func(params json.RawMessage) (any, *jsonrpc.Error)

func (s *Session) registerHandlers() {
	s.notifications = map[string]notificationHandler{
		MethodPublishDiagnostics: s.handleDiagnostics,
		MethodLogMessage:         s.handleLogMessage,
		MethodShowMessage:        s.handleShowMessage,
		MethodProgress:           s.handleDebugOnly(MethodProgress),
		MethodLogTrace:           s.handleDebugOnly(MethodLogTrace),
		MethodTelemetryEvent:     s.handleDebugOnly(MethodTelemetryEvent),
	}
	s.serverCalls = map[string]serverRequestHandler{
		MethodConfiguration:        s.handleConfiguration,
		MethodWorkDoneProgress:     acknowledge,
		MethodRegisterCapability:   acknowledge,
		MethodUnregisterCapability: acknowledge,
		MethodShowMessageRequest:   s.handleShowMessageRequest,
		MethodApplyEdit:            handleApplyEdit,
	}
}

// handleFrame decodes one inbound frame and routes it. Malformed frames
// are dropped; they never affect the connection.
func (s *Session) handleFrame(link transport.Link, frame []byte) {
	s.logFrame("recv", frame)

	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		s.opts.Metrics.RecordMalformed()
		s.logger.Warnw("Dropping malformed frame",
			logger.FieldError, err,
			logger.FieldSize, len(frame))
		return
	}

	switch msg.Kind() {
	case jsonrpc.KindResponse:
		s.handleResponse(msg)
	case jsonrpc.KindNotification:
		s.handleNotification(msg)
	case jsonrpc.KindRequest:
		s.handleServerRequest(link, msg)
	}
}

func (s *Session) handleResponse(msg *jsonrpc.Message) {
	id, ok := msg.IntID()
	if !ok {
		// Error response with a null id: the server could not parse a request
		if msg.Error != nil {
			s.logger.Warnw("Server reported an error without a request id",
				logger.FieldErrorCode, int(msg.Error.Code),
				logger.FieldError, msg.Error.Message)
		}
		return
	}

	var matched bool
	if msg.Error != nil {
		matched = s.table.Reject(id, msg.Error.Remote())
	} else {
		matched = s.table.Resolve(id, msg.Result)
	}
	if !matched {
		s.logger.Debugw("Response for unknown or expired request", logger.FieldRequestID, id)
	}
}

func (s *Session) handleNotification(msg *jsonrpc.Message) {
	s.opts.Metrics.RecordNotification(msg.Method)

	handler, ok := s.notifications[msg.Method]
	if !ok {
		s.logger.Debugw("Ignoring unhandled notification", logger.FieldMethod, msg.Method)
		return
	}
	if err := handler(msg.Params); err != nil {
		s.logger.Warnw("Notification handler failed",
			logger.FieldMethod, msg.Method,
			logger.FieldError, err)
	}
}

func (s *Session) handleServerRequest(link transport.Link, msg *jsonrpc.Message) {
	handler, ok := s.serverCalls[msg.Method]

	var frame []byte
	var err error
	if !ok {
		s.logger.Debugw("Rejecting unsupported server request", logger.FieldMethod, msg.Method)
		frame, err = jsonrpc.EncodeError(msg.ID, &jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeMethodNotFound,
			Message: "method not supported: " + msg.Method,
		})
	} else if result, rpcErr := handler(msg.Params); rpcErr != nil {
		frame, err = jsonrpc.EncodeError(msg.ID, rpcErr)
	} else {
		frame, err = jsonrpc.EncodeResult(msg.ID, result)
	}
	if err != nil {
		s.logger.Errorw("Failed to encode reply", logger.FieldMethod, msg.Method, logger.FieldError, err)
		return
	}

	if err := link.Send(frame); err != nil {
		s.logger.Debugw("Failed to send reply", logger.FieldMethod, msg.Method, logger.FieldError, err)
		return
	}
	s.logFrame("send", frame)
}

func (s *Session) handleDiagnostics(params json.RawMessage) error {
	var p wireDiagnostics
	if err := json.Unmarshal(params, &p); err != nil {
		return errors.Wrap(err, "invalid publishDiagnostics params")
	}
	markers := make([]Marker, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		markers = append(markers, toMarker(d))
	}
	s.logger.Debugw("Diagnostics published",
		logger.FieldURI, string(p.URI),
		logger.FieldCount, len(markers))
	s.bridge.OnDiagnostics(string(p.URI), markers)
	return nil
}

func (s *Session) handleLogMessage(params json.RawMessage) error {
	var p protocol.LogMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errors.Wrap(err, "invalid logMessage params")
	}
	s.bridge.OnLog(p.Message, logLevel(p.Type))
	return nil
}

func (s *Session) handleShowMessage(params json.RawMessage) error {
	var p protocol.ShowMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errors.Wrap(err, "invalid showMessage params")
	}
	s.bridge.OnAlert(p.Message, p.Type == protocol.MessageTypeError)
	return nil
}

func (s *Session) handleDebugOnly(method string) notificationHandler {
	return func(params json.RawMessage) error {
		s.logger.Debugw("Server notification",
			logger.FieldMethod, method,
			logger.FieldSize, len(params))
		return nil
	}
}

func acknowledge(json.RawMessage) (any, *jsonrpc.Error) {
	return nil, nil
}

// handleConfiguration answers with null for every requested section;
// the client has no settings to contribute.
func (s *Session) handleConfiguration(params json.RawMessage) (any, *jsonrpc.Error) {
	var p protocol.ConfigurationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: err.Error()}
	}
	return make([]any, len(p.Items)), nil
}

func (s *Session) handleShowMessageRequest(params json.RawMessage) (any, *jsonrpc.Error) {
	var p protocol.ShowMessageRequestParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: err.Error()}
	}
	s.bridge.OnAlert(p.Message, p.Type == protocol.MessageTypeError)
	return nil, nil
}

// handleApplyEdit declines workspace edits; documents are owned by the
// editor.
func handleApplyEdit(json.RawMessage) (any, *jsonrpc.Error) {
	return protocol.ApplyWorkspaceEditResponse{
		Applied:       false,
		FailureReason: util.Ptr("workspace edits are not supported"),
	}, nil
}
