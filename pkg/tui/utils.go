package tui

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// openBrowser hands an outbound link to the desktop browser. Only http(s)
// links are opened.
func openBrowser(link string) error {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("refusing to open %q", link)
	}

	var name string
	var args []string
	switch runtime.GOOS {
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	case "darwin":
		name = "open"
	default:
		name = "xdg-open"
	}
	return exec.Command(name, append(args, u.String())...).Start()
}
