package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSON-RPC request ids used by the app-server handshake. The protocol sends
// exactly three requests per session, so synthetic fixed ids suffice.
const (
	initializeRequestID  = 1
	threadStartRequestID = 2
	turnStartRequestID   = 3
)

// appServerCompletion is the terminal outcome of an app-server protocol
// exchange.
type appServerCompletion struct {
	succeeded   bool
	message     string
	interrupted bool
}

// appServerSession tracks the state of an active app-server JSON-RPC session
// over a child process's stdio.
type appServerSession struct {
	prompt        string
	threadStarted bool
	threadID      string
	// threadMethod is "thread/start" or "thread/resume", used in failure
	// labels for the id-2 response.
	threadMethod string
}

// newAppServerSession prepares a fresh session for the given prompt.
func newAppServerSession(prompt string) *appServerSession {
	return &appServerSession{prompt: prompt, threadMethod: "thread/start"}
}

// newResumeSession prepares a session that reconnects to a prior server-side
// thread instead of starting a new one.
func newResumeSession(prompt, threadID string) *appServerSession {
	return &appServerSession{prompt: prompt, threadID: threadID, threadMethod: "thread/resume"}
}

// start sends the handshake: initialize, the initialized notification, and
// thread/start or thread/resume depending on how the session was built.
func (s *appServerSession) start(stdin io.Writer) error {
	if err := writeFrame(stdin, initializeRequest()); err != nil {
		return err
	}
	if err := writeFrame(stdin, initializedNotification()); err != nil {
		return err
	}
	if s.threadMethod == "thread/resume" {
		return writeFrame(stdin, threadResumeRequest(s.threadID))
	}
	return writeFrame(stdin, threadStartRequest())
}

// handleMessage processes one parsed JSON-RPC message from the app-server.
// It returns a non-nil completion when the turn has reached a terminal
// state.
func (s *appServerSession) handleMessage(stdin io.Writer, message map[string]any) (*appServerCompletion, error) {
	if failure := s.checkErrorResponses(message); failure != nil {
		return failure, nil
	}

	if !s.threadStarted && isResponseForID(message, threadStartRequestID) {
		threadID := stringAtPointer(message, "result", "thread", "id")
		if threadID == "" {
			// A resume response may omit the id; keep the injected one.
			threadID = s.threadID
		}
		if threadID == "" {
			return &appServerCompletion{
				message: fmt.Sprintf("app-server %s response did not include thread id", s.threadMethod),
			}, nil
		}

		s.threadID = threadID
		if err := writeFrame(stdin, turnStartRequest(threadID, s.prompt)); err != nil {
			return nil, err
		}
		s.threadStarted = true
	}

	return checkTurnCompletion(message), nil
}

// checkErrorResponses reports a failure when any of the three expected
// responses carries an error payload.
func (s *appServerSession) checkErrorResponses(message map[string]any) *appServerCompletion {
	checks := []struct {
		id    int
		label string
	}{
		{initializeRequestID, "initialize"},
		{threadStartRequestID, s.threadMethod},
		{turnStartRequestID, "turn/start"},
	}

	for _, check := range checks {
		if !isResponseForID(message, check.id) {
			continue
		}
		if errMessage := stringAtPointer(message, "error", "message"); errMessage != "" {
			return &appServerCompletion{
				message: fmt.Sprintf("app-server %s failed: %s", check.label, errMessage),
			}
		}
	}
	return nil
}

// checkTurnCompletion maps a turn/completed notification to a terminal
// outcome, or nil for any other message.
func checkTurnCompletion(message map[string]any) *appServerCompletion {
	method, _ := message["method"].(string)
	if method != "turn/completed" {
		return nil
	}

	status := stringAtPointer(message, "params", "turn", "status")
	if status == "" {
		status = "unknown"
	}

	switch status {
	case "completed":
		return &appServerCompletion{succeeded: true}
	case "interrupted", "cancelled":
		return &appServerCompletion{message: turnFailureMessage(message, status), interrupted: true}
	case "failed":
		return &appServerCompletion{message: turnFailureMessage(message, status)}
	default:
		return &appServerCompletion{
			message: "agent turn completed with unexpected status: " + status,
		}
	}
}

// turnFailureMessage extracts the error detail from a turn/completed
// notification, falling back to a generic message with the raw status.
func turnFailureMessage(message map[string]any, status string) string {
	if detail := stringAtPointer(message, "params", "turn", "error", "message"); detail != "" {
		return detail
	}
	if detail := stringAtPointer(message, "params", "error", "message"); detail != "" {
		return detail
	}
	return "agent turn failed with status: " + status
}

func isResponseForID(message map[string]any, id int) bool {
	value, ok := message["id"]
	if !ok {
		return false
	}
	number, ok := value.(float64)
	return ok && int(number) == id
}

// stringAtPointer walks nested objects along path and returns the string at
// the leaf, or "" when any step is missing or of the wrong type.
func stringAtPointer(message map[string]any, path ...string) string {
	current := any(message)
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[key]
		if !ok {
			return ""
		}
	}
	text, _ := current.(string)
	return text
}

// writeFrame encodes one request as compact JSON followed by a newline.
// Frames are unbuffered so the child sees each request immediately.
func writeFrame(w io.Writer, frame map[string]any) error {
	encoded, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode app-server request: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("failed writing app-server request: %w", err)
	}
	return nil
}

func initializeRequest() map[string]any {
	return map[string]any{
		"id":     initializeRequestID,
		"method": "initialize",
		"params": map[string]any{
			"clientInfo": map[string]any{
				"name":    appName,
				"version": appVersion,
			},
		},
	}
}

func initializedNotification() map[string]any {
	return map[string]any{"method": "initialized", "params": map[string]any{}}
}

func threadStartRequest() map[string]any {
	return map[string]any{
		"id":     threadStartRequestID,
		"method": "thread/start",
		"params": map[string]any{},
	}
}

func threadResumeRequest(threadID string) map[string]any {
	return map[string]any{
		"id":     threadStartRequestID,
		"method": "thread/resume",
		"params": map[string]any{"threadId": threadID},
	}
}

func turnStartRequest(threadID, prompt string) map[string]any {
	return map[string]any{
		"id":     turnStartRequestID,
		"method": "turn/start",
		"params": map[string]any{
			"threadId": threadID,
			"input": []map[string]any{
				{"type": "text", "text": prompt},
			},
		},
	}
}

// ProgressEvent is one progress update forwarded to the TUI while the agent
// runs.
type ProgressEvent struct {
	// Message is the formatted status line for parseable JSON output.
	Message string
	// ParseWarning holds the raw line when stdout produced something that
	// was not JSON.
	ParseWarning string
}

// parseProgressEvent formats a raw stdout line into a progress event. JSON
// lines become structured status messages; anything else is surfaced as a
// parse warning carrying the raw line.
func parseProgressEvent(line string) ProgressEvent {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return ProgressEvent{ParseWarning: line}
	}
	return ProgressEvent{Message: formatJSONEvent(parsed)}
}

// formatJSONEvent prefers the JSON-RPC method when present, falling back to
// a top-level type field.
func formatJSONEvent(event map[string]any) string {
	if method, ok := event["method"].(string); ok && method != "" {
		if text := stringAtPointer(event, "params", "delta", "text"); text != "" {
			return method + ": " + text
		}
		if delta, ok := deepValue(event, "params", "delta").(string); ok && delta != "" {
			return method + ": " + delta
		}
		return "event: " + method
	}

	eventType, _ := event["type"].(string)
	if eventType == "" {
		eventType = "event"
	}
	if message, ok := event["message"].(string); ok && message != "" {
		return eventType + ": " + message
	}
	if text := stringAtPointer(event, "delta", "text"); text != "" {
		return eventType + ": " + text
	}
	return "event: " + eventType
}

// deepValue walks nested objects along path and returns the raw value.
func deepValue(message map[string]any, path ...string) any {
	current := any(message)
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return current
}
