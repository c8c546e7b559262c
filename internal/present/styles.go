package present

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles shared by CLI commands.
type Styles struct {
	AppName          lipgloss.Style
	Comment          lipgloss.Style
	ConversationList lipgloss.Style
	ErrorHeader      lipgloss.Style
	ErrorDetails     lipgloss.Style
	ErrPadding       lipgloss.Style
	Flag             lipgloss.Style
	FlagComma        lipgloss.Style
	FlagDesc         lipgloss.Style
	InlineCode       lipgloss.Style
	Link             lipgloss.Style
	ShortID          lipgloss.Style
	Timeago          lipgloss.Style
	ToolName         lipgloss.Style
	ToolResult       lipgloss.Style
	ToolFailed       lipgloss.Style
	Current          lipgloss.Style
}

// MakeStyles returns the styles bound to r.
func MakeStyles(r *lipgloss.Renderer) (s Styles) {
	const horizontalEdgePadding = 2
	s.AppName = r.NewStyle().Bold(true)
	s.Comment = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#757575"})
	s.ConversationList = r.NewStyle().Padding(0, 1)
	s.ErrorHeader = r.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Bold(true).Padding(0, 1).SetString("ERROR")
	s.ErrorDetails = s.Comment
	s.ErrPadding = r.NewStyle().Padding(0, horizontalEdgePadding)
	s.Flag = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}).Bold(true)
	s.FlagComma = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5DD6C0", Dark: "#427C72"}).SetString(",")
	s.FlagDesc = s.Comment
	s.InlineCode = r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Background(lipgloss.AdaptiveColor{Light: "#EEEEEE", Dark: "#3A3A3A"}).Padding(0, 1)
	s.Link = r.NewStyle().Foreground(lipgloss.Color("#00AF87")).Underline(true)
	s.ShortID = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A3A322", Dark: "#F6F37E"})
	s.Timeago = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999", Dark: "#555"})
	s.ToolName = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B50FF", Dark: "#8E7CFF"}).Bold(true)
	s.ToolResult = s.Comment
	s.ToolFailed = r.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	s.Current = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"})
	return s
}
