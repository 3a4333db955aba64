package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"buddy/internal/providers"
)

const defaultExportPath = "chat_export.txt"

type command struct {
	name  string
	usage string
	run   func(m *Model, args string) tea.Cmd
}

var commandTable []command

func init() {
	commandTable = []command{
		{"help", "/help", (*Model).cmdHelp},
		{"topics", "/topics", (*Model).cmdTopics},
		{"topic", "/topic <name>  switch topic", (*Model).cmdSwitchTopic},
		{"new", "/new <name>  create and switch to a topic", (*Model).cmdNewTopic},
		{"delete", "/delete <name>", (*Model).cmdDeleteTopic},
		{"models", "/models", (*Model).cmdModels},
		{"model", "/model <gemini|groq|huggingface>", (*Model).cmdModel},
		{"test", "/test [provider|all]", (*Model).cmdTest},
		{"attach", "/attach <path>...", (*Model).cmdAttach},
		{"files", "/files  preview attachments", (*Model).cmdFiles},
		{"clearfiles", "/clearfiles", (*Model).cmdClearFiles},
		{"voice", "/voice  (or F2)", (*Model).cmdVoice},
		{"tts", "/tts [on|off]", (*Model).cmdTTS},
		{"clear", "/clear  clear this topic", (*Model).cmdClear},
		{"export", "/export [path]", (*Model).cmdExport},
		{"diag", "/diag", (*Model).cmdDiag},
		{"quit", "/quit", (*Model).cmdQuit},
	}
}

// parseCommand splits "/name rest of line" into its parts.
func parseCommand(input string) (name, args string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, args, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commandTable {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (m *Model) runCommand(input string) tea.Cmd {
	name, args := parseCommand(input)
	c, ok := lookupCommand(name)
	if !ok {
		m.setNotice(fmt.Sprintf("unknown command /%s (try /help)", name), true)
		return nil
	}
	m.logger.Debug().Str("command", name).Msg("slash command")
	return c.run(m, args)
}

func (m *Model) cmdHelp(string) tea.Cmd {
	usages := make([]string, 0, len(commandTable))
	for _, c := range commandTable {
		usages = append(usages, c.usage)
	}
	m.openPreview("Commands\n\n" + strings.Join(usages, "\n") +
		"\n\nEnter sends, Alt+Enter adds a line, PgUp/PgDn scroll, Ctrl+C quits.")
	return nil
}

func (m *Model) cmdTopics(string) tea.Cmd {
	store := m.sess.Store()
	active := store.Active()
	names := store.Topics()
	for i, n := range names {
		if n == active {
			names[i] = n + "*"
		}
	}
	m.setNotice("Topics: "+strings.Join(names, ", "), false)
	return nil
}

func (m *Model) cmdSwitchTopic(args string) tea.Cmd {
	if args == "" {
		m.setNotice("usage: /topic <name>", true)
		return nil
	}
	if err := m.sess.SwitchTopic(args); err != nil {
		m.setNotice(err.Error(), true)
	}
	return nil
}

func (m *Model) cmdNewTopic(args string) tea.Cmd {
	if err := m.sess.CreateTopic(args); err != nil {
		m.setNotice(err.Error(), true)
	}
	return nil
}

func (m *Model) cmdDeleteTopic(args string) tea.Cmd {
	if args == "" {
		args = m.sess.Store().Active()
	}
	if err := m.sess.DeleteTopic(args); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice("Deleted topic "+args, false)
	return nil
}

func (m *Model) cmdModels(string) tea.Cmd {
	current := m.sess.State().Provider
	var parts []string
	for _, info := range m.sess.ProviderInfo() {
		mark := ""
		if info.ID == current {
			mark = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%s (%s)", info.ID, mark, info.Status))
	}
	m.setNotice("Models: "+strings.Join(parts, ", "), false)
	return nil
}

func (m *Model) cmdModel(args string) tea.Cmd {
	id, err := providers.ParseID(args)
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	if err := m.sess.SelectProvider(id); err != nil {
		m.setNotice(err.Error(), true)
	}
	return nil
}

func (m *Model) cmdTest(args string) tea.Cmd {
	if args == "" {
		m.sess.TestConnection(m.sess.State().Provider)
		return nil
	}
	if strings.EqualFold(args, "all") {
		m.sess.TestAll()
		return nil
	}
	id, err := providers.ParseID(args)
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.sess.TestConnection(id)
	return nil
}

func (m *Model) cmdAttach(args string) tea.Cmd {
	paths := strings.Fields(args)
	if len(paths) == 0 {
		m.setNotice("usage: /attach <path>...", true)
		return nil
	}
	m.sess.Attach(paths)
	return nil
}

func (m *Model) cmdFiles(string) tea.Cmd {
	if len(m.sess.Attachments()) == 0 {
		m.setNotice("No files attached", false)
		return nil
	}
	m.openPreview(m.sess.PreviewAttachments())
	return nil
}

func (m *Model) cmdClearFiles(string) tea.Cmd {
	m.sess.ClearAttachments()
	return nil
}

func (m *Model) cmdVoice(string) tea.Cmd {
	m.sess.Listen()
	return nil
}

func (m *Model) cmdTTS(args string) tea.Cmd {
	switch strings.ToLower(args) {
	case "":
		m.sess.SetTTS(!m.sess.State().TTS)
	case "on":
		m.sess.SetTTS(true)
	case "off":
		m.sess.SetTTS(false)
	default:
		m.setNotice("usage: /tts [on|off]", true)
	}
	return nil
}

func (m *Model) cmdClear(string) tea.Cmd {
	m.sess.ClearChat()
	return nil
}

func (m *Model) cmdExport(args string) tea.Cmd {
	path := args
	if path == "" {
		path = defaultExportPath
	}
	if err := m.sess.Export(path); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice("Chat exported to "+path, false)
	return nil
}

func (m *Model) cmdDiag(string) tea.Cmd {
	m.sess.Diagnostics()
	return nil
}

func (m *Model) cmdQuit(string) tea.Cmd {
	m.confirmQuit = true
	return nil
}

func (m *Model) openPreview(text string) {
	m.previewing = true
	m.preview = text
	if m.ready {
		m.viewport.SetContent(text)
		m.viewport.GotoTop()
	}
}
