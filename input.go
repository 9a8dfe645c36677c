package main

import (
	tea "github.com/charmbracelet/bubbletea"
)

// InputContext selects which key map applies. The same key can mean
// different things per context: h/l navigate commits only in time travel,
// and Esc is back/exit/cancel depending on where the user is.
type InputContext int

const (
	ContextReviewList InputContext = iota
	ContextDiffContext
	ContextTimeTravel
	ContextResumePrompt
	ContextReplyDraft
)

// appMsg is a keyboard-driven application message without a payload.
type appMsg int

const (
	msgQuit appMsg = iota
	msgCursorUp
	msgCursorDown
	msgPageUp
	msgPageDown
	msgHome
	msgEnd
	msgCycleFilter
	msgEscape
	msgRefresh
	msgToggleHelp
	msgShowDiffContext
	msgHideDiffContext
	msgPreviousHunk
	msgNextHunk
	msgEnterTimeTravel
	msgExitTimeTravel
	msgPreviousCommit
	msgNextCommit
	msgStartReplyDraft
	msgReplyBackspace
	msgReplySend
	msgReplyCancel
	msgReplyAiApply
	msgReplyAiDiscard
	msgStartAgent
	msgResumeAccepted
	msgResumeDeclined
)

// replyInsertCharMsg appends one printable character to the draft.
type replyInsertCharMsg rune

// replyInsertTemplateMsg inserts the configured template at the given
// zero-based slot.
type replyInsertTemplateMsg int

// replyAiRequestMsg dispatches an AI rewrite of the current draft.
type replyAiRequestMsg struct {
	mode RewriteMode
}

// mapKeyToMsg translates a terminal key event into an application message
// for the given context. It is a pure function; unmapped keys return nil.
func mapKeyToMsg(key tea.KeyMsg, context InputContext) tea.Msg {
	switch context {
	case ContextTimeTravel:
		switch key.String() {
		case "h":
			return msgPreviousCommit
		case "l":
			return msgNextCommit
		case "esc":
			return msgExitTimeTravel
		case "q":
			return msgQuit
		}
		return mapSharedKey(key)
	case ContextDiffContext:
		switch key.String() {
		case "[":
			return msgPreviousHunk
		case "]":
			return msgNextHunk
		case "esc":
			return msgHideDiffContext
		case "q":
			return msgQuit
		}
		return mapSharedKey(key)
	case ContextResumePrompt:
		switch key.String() {
		case "y":
			return msgResumeAccepted
		case "n", "esc":
			return msgResumeDeclined
		case "q":
			return msgQuit
		}
		return nil
	case ContextReplyDraft:
		return mapReplyDraftKey(key)
	default: // ContextReviewList
		switch key.String() {
		case "x":
			return msgStartAgent
		case "a":
			return msgStartReplyDraft
		}
		return mapSharedKey(key)
	}
}

// mapSharedKey holds the bindings shared by the list-like contexts.
func mapSharedKey(key tea.KeyMsg) tea.Msg {
	switch key.String() {
	case "q", "ctrl+c":
		return msgQuit
	case "j", "down":
		return msgCursorDown
	case "k", "up":
		return msgCursorUp
	case "pgdown":
		return msgPageDown
	case "pgup":
		return msgPageUp
	case "g", "home":
		return msgHome
	case "G", "end":
		return msgEnd
	case "f":
		return msgCycleFilter
	case "esc":
		return msgEscape
	case "r":
		return msgRefresh
	case "?":
		return msgToggleHelp
	case "c":
		return msgShowDiffContext
	case "t":
		return msgEnterTimeTravel
	case "[":
		return msgPreviousHunk
	case "]":
		return msgNextHunk
	}
	return nil
}

// mapReplyDraftKey maps keys while drafting a reply. Digits insert
// templates, uppercase E/W/Y/N drive the AI preview, and any other printable
// rune is appended to the draft text.
func mapReplyDraftKey(key tea.KeyMsg) tea.Msg {
	switch key.String() {
	case "enter":
		return msgReplySend
	case "backspace":
		return msgReplyBackspace
	case "esc":
		return msgReplyCancel
	case "E":
		return replyAiRequestMsg{mode: RewriteExpand}
	case "W":
		return replyAiRequestMsg{mode: RewriteReword}
	case "Y":
		return msgReplyAiApply
	case "N":
		return msgReplyAiDiscard
	}

	if key.Type == tea.KeyRunes && len(key.Runes) == 1 {
		r := key.Runes[0]
		if r >= '1' && r <= '9' {
			return replyInsertTemplateMsg(int(r - '1'))
		}
		return replyInsertCharMsg(r)
	}
	if key.Type == tea.KeySpace {
		return replyInsertCharMsg(' ')
	}
	return nil
}
