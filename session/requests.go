package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/jsonrpc"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/pending"
	"github.com/teranos/lspsession/transport"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// request sends method over link and blocks until it is resolved, times
// out, or ctx ends. When result is non-nil the response is unmarshalled
// into it. The request is tracked only if it reached the wire.
func (s *Session) request(ctx context.Context, link transport.Link, method string, params, result any) error {
	if link == nil {
		s.opts.Metrics.ObserveRequest(method, errors.Outcome(errors.ErrTransportNotReady), 0)
		return errors.Wrapf(errors.ErrTransportNotReady, "%s: no connection", method)
	}

	id := s.nextID.Add(1)
	frame, err := jsonrpc.EncodeRequest(id, method, params)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", method)
	}

	outcome := make(chan pending.Outcome, 1)
	if err := s.table.Register(id, func(o pending.Outcome) { outcome <- o }); err != nil {
		return err
	}

	start := time.Now()
	if err := link.Send(frame); err != nil {
		s.table.Discard(id)
		s.opts.Metrics.ObserveRequest(method, errors.Outcome(err), 0)
		return errors.Wrapf(err, "failed to send %s (id=%d)", method, id)
	}
	s.logFrame("send", frame)
	s.recordPending()

	var o pending.Outcome
	select {
	case o = <-outcome:
	case <-ctx.Done():
		if s.table.Cancel(id) {
			if err := s.notify(link, MethodCancel, cancelParams{ID: id}); err != nil {
				s.logger.Debugw("Failed to send cancellation",
					logger.FieldRequestID, id,
					logger.FieldError, err)
			}
		}
		// Either Cancel completed the entry or another path got there first
		o = <-outcome
	}

	elapsed := time.Since(start)
	s.opts.Metrics.ObserveRequest(method, errors.Outcome(o.Err), elapsed)
	s.recordPending()

	if o.Err != nil {
		s.logger.Debugw("Request failed",
			logger.FieldMethod, method,
			logger.FieldRequestID, id,
			logger.FieldDurationMS, elapsed.Milliseconds(),
			logger.FieldError, o.Err)
		return errors.Wrapf(o.Err, "%s (id=%d)", method, id)
	}

	if result != nil {
		if err := json.Unmarshal(o.Result, result); err != nil {
			return errors.Wrapf(err, "failed to decode %s result", method)
		}
	}
	return nil
}

type cancelParams struct {
	ID int64 `json:"id"`
}

func (s *Session) notify(link transport.Link, method string, params any) error {
	if link == nil {
		return errors.Wrapf(errors.ErrTransportNotReady, "%s: no connection", method)
	}
	frame, err := jsonrpc.EncodeNotification(method, params)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", method)
	}
	if err := link.Send(frame); err != nil {
		return errors.Wrapf(err, "failed to send %s", method)
	}
	s.logFrame("send", frame)
	return nil
}

func (s *Session) logFrame(direction string, frame []byte) {
	if s.opts.LogFrames {
		s.logger.Debugw("Frame", "direction", direction, logger.FieldFrame, string(frame))
	}
}

// Call sends an arbitrary request once the session is ready and decodes
// the response into result, which may be nil.
func (s *Session) Call(ctx context.Context, method string, params, result any) error {
	link, _ := s.readyLink()
	if link == nil {
		return errors.Wrapf(errors.ErrTransportNotReady, "%s: session is %s", method, s.State())
	}
	return s.request(ctx, link, method, params, result)
}

// Notify sends an arbitrary notification once the session is ready.
func (s *Session) Notify(method string, params any) error {
	link, _ := s.readyLink()
	if link == nil {
		return errors.Wrapf(errors.ErrTransportNotReady, "%s: session is %s", method, s.State())
	}
	return s.notify(link, method, params)
}

// DidOpen announces a document. It is dropped unless the session is
// ready; the bridge snapshot is re-sent after every handshake.
func (s *Session) DidOpen(uri, languageID string, version int32, text string) {
	link, _ := s.readyLink()
	if link == nil {
		s.logger.Debugw("Dropping didOpen, session not ready", logger.FieldURI, uri)
		return
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	if err := s.sendDidOpen(link, Document{URI: uri, LanguageID: languageID, Version: version, Text: text}); err != nil {
		s.logger.Warnw("Failed to send didOpen", logger.FieldURI, uri, logger.FieldError, err)
	}
}

// sendDidOpen must be called with syncMu held.
func (s *Session) sendDidOpen(link transport.Link, doc Document) error {
	s.synced[doc.URI] = doc.Version
	if doc.LanguageID == "" {
		doc.LanguageID = "plaintext"
	}
	params := protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentUri(doc.URI),
			LanguageID: doc.LanguageID,
			Version:    protocol.Integer(doc.Version),
			Text:       doc.Text,
		},
	}
	return s.notify(link, MethodDidOpen, params)
}

// DidChange sends the full document text at version. It is dropped
// unless the session is ready, and when version is not newer than the
// last one sent for uri.
func (s *Session) DidChange(uri string, version int32, text string) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	link, _ := s.readyLink()
	if link == nil {
		s.logger.Debugw("Dropping didChange, session not ready",
			logger.FieldURI, uri,
			logger.FieldVersion, version)
		return
	}
	if last, ok := s.synced[uri]; ok && version <= last {
		s.logger.Debugw("Dropping didChange, version already sent",
			logger.FieldURI, uri,
			logger.FieldVersion, version)
		return
	}
	s.synced[uri] = version
	params := protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
			Version:                protocol.Integer(version),
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: text},
		},
	}
	if err := s.notify(link, MethodDidChange, params); err != nil {
		s.logger.Warnw("Failed to send didChange", logger.FieldURI, uri, logger.FieldError, err)
	}
}

func positionParams(uri string, line, character uint32) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(character)},
	}
}

// Completion requests completion items at a zero-based position. It
// returns an empty list without a request when the session is not ready
// or the server does not provide completion.
func (s *Session) Completion(ctx context.Context, uri string, line, character uint32) ([]CompletionItem, error) {
	link, caps := s.readyLink()
	if link == nil || caps == nil || !caps.Completion {
		return []CompletionItem{}, nil
	}

	params := protocol.CompletionParams{TextDocumentPositionParams: positionParams(uri, line, character)}
	var raw json.RawMessage
	if err := s.request(ctx, link, MethodCompletion, params, &raw); err != nil {
		return nil, err
	}
	return decodeCompletion(raw)
}

// Hover requests hover content at a zero-based position. A nil result
// with a nil error means no hover is available.
func (s *Session) Hover(ctx context.Context, uri string, line, character uint32) (*HoverResult, error) {
	link, caps := s.readyLink()
	if link == nil || caps == nil || !caps.Hover {
		return nil, nil
	}

	params := protocol.HoverParams{TextDocumentPositionParams: positionParams(uri, line, character)}
	var raw json.RawMessage
	if err := s.request(ctx, link, MethodHover, params, &raw); err != nil {
		return nil, err
	}
	return decodeHover(raw)
}
