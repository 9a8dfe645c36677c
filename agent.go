package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// agentSubcommand is the single subcommand passed to the agent binary.
const agentSubcommand = "app-server"

// ExecutionOutcome is the terminal result of one agent run.
type ExecutionOutcome struct {
	Succeeded      bool
	Message        string
	ExitCode       *int
	Interrupted    bool
	TranscriptPath string
	ThreadID       string
}

// ExecutionUpdate is one message from the agent worker to the TUI: either a
// progress event or the terminal outcome, never both.
type ExecutionUpdate struct {
	Progress *ProgressEvent
	Finished *ExecutionOutcome
}

// AgentRunSpec describes one agent invocation.
type AgentRunSpec struct {
	// CommandPath is the agent binary to launch.
	CommandPath string
	// Prompt is the turn input text.
	Prompt string
	// TranscriptPath receives one row per stdout line.
	TranscriptPath string
	// Owner, Repo, Number identify the pull request for the sidecar.
	Owner  string
	Repo   string
	Number int
	// Resume reconnects to ThreadID via thread/resume and appends to the
	// existing transcript instead of truncating it.
	Resume   bool
	ThreadID string
}

// AgentHandle is the TUI's view of a running agent: a channel of updates and
// a cancel operation.
type AgentHandle struct {
	Updates chan ExecutionUpdate

	mu        sync.Mutex
	process   *os.Process
	cancelled bool
}

// Cancel kills the child process (best effort) and records the cancellation
// so the worker reports the outcome as interrupted.
func (h *AgentHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	process := h.process
	h.mu.Unlock()

	if process != nil {
		_ = process.Kill()
	}
}

func (h *AgentHandle) wasCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *AgentHandle) setProcess(p *os.Process) {
	h.mu.Lock()
	h.process = p
	h.mu.Unlock()
}

// RunAgent spawns a worker goroutine that executes the agent and streams
// progress updates through the returned handle.
func RunAgent(spec AgentRunSpec) *AgentHandle {
	handle := &AgentHandle{Updates: make(chan ExecutionUpdate, 256)}
	go executeAgent(spec, handle)
	return handle
}

func executeAgent(spec AgentRunSpec, handle *AgentHandle) {
	var transcript *TranscriptWriter
	var err error
	if spec.Resume {
		transcript, err = OpenTranscriptAppend(spec.TranscriptPath)
	} else {
		transcript, err = CreateTranscript(spec.TranscriptPath)
	}
	if err != nil {
		sendFailure(handle, fmt.Sprintf("failed to create transcript: %v", err), nil, "", false)
		return
	}
	defer func() { _ = transcript.Close() }()

	state := &SessionState{
		Status:         SessionRunning,
		TranscriptPath: spec.TranscriptPath,
		ThreadID:       spec.ThreadID,
		Owner:          spec.Owner,
		Repo:           spec.Repo,
		Number:         spec.Number,
		StartedAt:      time.Now().UTC(),
	}
	_ = state.WriteSidecar()

	cmd := exec.Command(spec.CommandPath, agentSubcommand)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		failTerminal(handle, state, fmt.Sprintf("failed to open agent stdin: %v", err), nil, spec.TranscriptPath)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		failTerminal(handle, state, fmt.Sprintf("failed to open agent stdout: %v", err), nil, spec.TranscriptPath)
		return
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		failTerminal(handle, state, fmt.Sprintf("failed to open agent stderr: %v", err), nil, spec.TranscriptPath)
		return
	}

	if err := cmd.Start(); err != nil {
		failTerminal(handle, state, fmt.Sprintf("failed to launch agent: %v", err), nil, spec.TranscriptPath)
		return
	}
	handle.setProcess(cmd.Process)

	stderr := captureStderr(stderrPipe)

	var session *appServerSession
	if spec.Resume {
		session = newResumeSession(spec.Prompt, spec.ThreadID)
	} else {
		session = newAppServerSession(spec.Prompt)
	}
	if err := session.start(stdin); err != nil {
		// The handshake could not be written; keep streaming output so the
		// transcript still captures whatever the child prints.
		session = nil
	}

	completion, streamErr := streamAgentOutput(stdout, stdin, session, transcript, handle)
	state.ThreadID = threadIDOf(session, spec.ThreadID)

	if streamErr != nil {
		state.markTerminal(SessionFailed, time.Now())
		failTerminal(handle, nil, stderr.appendTo(streamErr.Error()), nil, spec.TranscriptPath)
		reapChild(cmd)
		return
	}

	if err := transcript.Flush(); err != nil {
		state.markTerminal(SessionFailed, time.Now())
		failTerminal(handle, nil, stderr.appendTo(fmt.Sprintf("failed to flush transcript: %v", err)), nil, spec.TranscriptPath)
		reapChild(cmd)
		return
	}

	if completion != nil {
		finishFromCompletion(cmd, completion, state, stderr, handle, spec.TranscriptPath)
		return
	}

	// stdout reached EOF before a protocol terminal; the child decides the
	// outcome via its exit status.
	finishFromExit(cmd, state, stderr, handle, spec.TranscriptPath)
}

// streamAgentOutput reads stdout line by line, appending each to the
// transcript and forwarding it as a progress event, then feeding it to the
// protocol session. Returns a non-nil completion when the protocol reached a
// terminal state, or (nil, nil) on EOF.
func streamAgentOutput(
	stdout io.Reader,
	stdin io.Writer,
	session *appServerSession,
	transcript *TranscriptWriter,
	handle *AgentHandle,
) (*appServerCompletion, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if err := transcript.AppendLine(line); err != nil {
			return nil, fmt.Errorf("failed to write transcript: %w", err)
		}

		event := parseProgressEvent(line)
		handle.Updates <- ExecutionUpdate{Progress: &event}

		if session == nil {
			continue
		}
		var message map[string]any
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			continue
		}
		completion, err := session.handleMessage(stdin, message)
		if err != nil {
			return nil, err
		}
		if completion != nil {
			return completion, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agent output: %w", err)
	}
	return nil, nil
}

// finishFromCompletion handles a protocol terminal: the child is terminated
// if still running, then the outcome is reported.
func finishFromCompletion(
	cmd *exec.Cmd,
	completion *appServerCompletion,
	state *SessionState,
	stderr *stderrCapture,
	handle *AgentHandle,
	transcriptPath string,
) {
	terminateChild(cmd)

	if completion.succeeded {
		state.markTerminal(SessionCompleted, time.Now())
		sendSuccess(handle, transcriptPath, state.ThreadID)
		return
	}

	interrupted := completion.interrupted || handle.wasCancelled()
	if interrupted {
		state.markTerminal(SessionInterrupted, time.Now())
	} else {
		state.markTerminal(SessionFailed, time.Now())
	}
	sendFailure(handle, stderr.appendTo(completion.message), nil, transcriptPath, interrupted)
}

// finishFromExit waits for the child after stdout EOF and maps its exit
// status to the outcome.
func finishFromExit(
	cmd *exec.Cmd,
	state *SessionState,
	stderr *stderrCapture,
	handle *AgentHandle,
	transcriptPath string,
) {
	err := cmd.Wait()

	if handle.wasCancelled() {
		state.markTerminal(SessionInterrupted, time.Now())
		sendFailure(handle, stderr.appendTo("agent session cancelled"), nil, transcriptPath, true)
		return
	}

	if err == nil {
		state.markTerminal(SessionCompleted, time.Now())
		sendSuccess(handle, transcriptPath, state.ThreadID)
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		state.markTerminal(SessionFailed, time.Now())
		message := stderr.appendTo(fmt.Sprintf("agent exited with a non-zero status (exit code %d)", code))
		sendFailure(handle, message, &code, transcriptPath, false)
		return
	}

	state.markTerminal(SessionFailed, time.Now())
	sendFailure(handle, stderr.appendTo(fmt.Sprintf("failed waiting for agent exit: %v", err)), nil, transcriptPath, false)
}

// terminateChild kills and reaps the child when it is still running.
func terminateChild(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

func reapChild(cmd *exec.Cmd) {
	terminateChild(cmd)
}

func threadIDOf(session *appServerSession, fallback string) string {
	if session != nil && session.threadID != "" {
		return session.threadID
	}
	return fallback
}

func sendSuccess(handle *AgentHandle, transcriptPath, threadID string) {
	handle.Updates <- ExecutionUpdate{Finished: &ExecutionOutcome{
		Succeeded:      true,
		TranscriptPath: transcriptPath,
		ThreadID:       threadID,
	}}
}

func sendFailure(handle *AgentHandle, message string, exitCode *int, transcriptPath string, interrupted bool) {
	handle.Updates <- ExecutionUpdate{Finished: &ExecutionOutcome{
		Message:        message,
		ExitCode:       exitCode,
		Interrupted:    interrupted,
		TranscriptPath: transcriptPath,
	}}
}

// failTerminal records a failed terminal state (when state is non-nil) and
// reports the failure.
func failTerminal(handle *AgentHandle, state *SessionState, message string, exitCode *int, transcriptPath string) {
	if state != nil {
		state.markTerminal(SessionFailed, time.Now())
	}
	sendFailure(handle, message, exitCode, transcriptPath, false)
}

// BuildAgentPrompt composes the turn prompt from the pull request identity,
// its URL, and the review comments encoded as JSONL.
func BuildAgentPrompt(locator PullRequestLocator, comments []ReviewComment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Resolve review comments for pull request %s/%s #%d.\n", locator.Owner, locator.Repo, locator.Number)
	sb.WriteString("Summarise key changes and apply fixes where safe.\n")
	fmt.Fprintf(&sb, "Pull request URL: %s\n", locator.HTMLURL())
	sb.WriteString("Review comments (JSONL):\n")
	for _, comment := range comments {
		line, err := json.Marshal(comment)
		if err != nil {
			continue
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DefaultTranscriptPath builds a transcript file path for a run under dir.
func DefaultTranscriptPath(dir string, locator PullRequestLocator, now time.Time) string {
	name := fmt.Sprintf("agent-%s-%s-%d-%d.jsonl", locator.Owner, locator.Repo, locator.Number, now.Unix())
	return filepath.Join(dir, name)
}

// FindInterruptedSession scans dir for the most recent sidecar recording an
// interrupted session for the given pull request.
func FindInterruptedSession(dir string, locator PullRequestLocator) (*SessionState, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}

	var latest *SessionState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".session.json") {
			continue
		}
		transcriptPath := filepath.Join(dir, strings.TrimSuffix(entry.Name(), ".session.json"))
		state, ok, err := ReadSidecar(transcriptPath)
		if err != nil || !ok {
			continue
		}
		if state.Status != SessionInterrupted {
			continue
		}
		if state.Owner != locator.Owner || state.Repo != locator.Repo || state.Number != locator.Number {
			continue
		}
		if latest == nil || state.StartedAt.After(latest.StartedAt) {
			latest = state
		}
	}
	return latest, latest != nil
}
