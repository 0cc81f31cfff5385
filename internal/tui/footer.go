package tui

// renderFooter renders the footer at full terminal width: the newest notice
// when there is one, then the key hint (or the full help when toggled).
func renderFooter(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}
	text := "? for help"
	if app.showHelp {
		text = helpText
	}
	hint := StyleDim.Width(width).Render(text)

	n, ok := app.currentNotice()
	if !ok {
		return hint
	}
	style := StyleGreen
	if n.Error {
		style = StyleError
	}
	return style.Width(width).Render(n.At.Format("15:04:05")+"  "+n.Text) + "\n" + hint
}
