package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
)

// renderHeader renders the top header bar.
//
// Layout:
//
//	left:   "crawlwatch  <base URL>"
//	center: one "● state" indicator per channel
//	right:  "Last: HH:MM:SS  Poll: 5s" (or "Auto-update off")
func renderHeader(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}

	left := "crawlwatch"
	if app.opts.BaseURL != "" {
		left += "  " + StyleDim.Render(sanitize(app.opts.BaseURL))
	}

	indicators := []string{channelIndicator("poll", app.poll, app.opts.Now())}
	if app.pushEnabled {
		indicators = append(indicators, channelIndicator("push", app.push, app.opts.Now()))
	} else {
		indicators = append(indicators, StyleDim.Render("push off"))
	}
	center := strings.Join(indicators, "  ")

	lastStr := "--:--:--"
	if !app.lastUpdated.IsZero() {
		lastStr = app.lastUpdated.Format("15:04:05")
	}
	right := StyleDim.Render(fmt.Sprintf("Last: %s  Poll: %s", lastStr, formatInterval(app.opts.PollInterval)))
	if !app.polling {
		right = StyleYellow.Render(fmt.Sprintf("Last: %s  Auto-update off", lastStr))
	}

	// StyleHeader has Padding(0, 1) so inner content width = total width - 2.
	innerWidth := width - 2
	spacing := innerWidth - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right)
	if spacing < 0 {
		spacing = 0
	}
	leftSpacing := spacing / 2
	rightSpacing := spacing - leftSpacing

	row := left +
		strings.Repeat(" ", leftSpacing) +
		center +
		strings.Repeat(" ", rightSpacing) +
		right

	return StyleHeader.Width(width).Render(row)
}

// channelIndicator renders "name ● state", with the retry countdown while
// the channel is in backoff.
func channelIndicator(name string, s model.ChannelState, now time.Time) string {
	text := name + " ● " + s.Conn.String()
	switch {
	case s.Conn == model.Backoff:
		wait := max(0, s.NextRetryAt.Sub(now).Round(time.Second))
		text = fmt.Sprintf("%s ● retry #%d in %s", name, s.Attempt, wait)
	case s.Conn == model.Disconnected && s.Err != nil:
		text += " (" + classifyError(s.Err) + ")"
	}
	return ConnStyle(s.Conn).Render(text)
}

// classifyError maps a transport error to a short label for the header.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Sprintf("Authentication failed (%d)", se.Code)
		case http.StatusNotFound:
			return "Not found (404)"
		}
		return fmt.Sprintf("HTTP %d", se.Code)
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "connection refused"):
		return "Connection refused"
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded"):
		return "Timeout"
	case isTLSError(err):
		return "TLS error"
	case strings.Contains(lower, "no such host"):
		return "Unknown host"
	}
	const maxLen = 40
	if utf8.RuneCountInString(msg) > maxLen {
		return string([]rune(msg)[:maxLen]) + "..."
	}
	return msg
}

// isTLSError reports whether err looks like a certificate or handshake failure.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "x509") || strings.Contains(lower, "tls") ||
		strings.Contains(lower, "certificate")
}

// formatInterval formats a poll interval as a compact string, e.g. "10s" or "2m".
func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
