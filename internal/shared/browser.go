package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser starts the system browser on url without waiting for it.
//
// $BROWSER takes precedence; otherwise open, xdg-open or start is used depending on the platform.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func browserCommand(url string) (string, []string, error) {
	if fields := strings.Fields(os.Getenv("BROWSER")); len(fields) > 0 {
		return fields[0], append(fields[1:], url), nil
	}

	switch rt := getRuntime(); rt {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}
