package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// ResolveValue expands references in config values:
//   - srv://record/path -> DNS SRV lookup, returned as https://host:port/path
//   - $(...) -> output of a shell command
//   - ${VAR} or $VAR -> environment variable
//   - anything else is returned trimmed
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "srv://"):
		return resolveSRV(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return resolveCommand(value[2 : len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

// expandEnv replaces a value that is exactly ${VAR} or $VAR with the
// variable's value. Other strings are returned unchanged.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") && !strings.ContainsAny(s[1:], " /:$") {
		return os.Getenv(s[1:])
	}
	return s
}

// resolveSRV turns srv://_service._proto.domain/path into a concrete
// https URL using the highest priority record.
func resolveSRV(srvURL string) (string, error) {
	u, err := url.Parse(srvURL)
	if err != nil {
		return "", fmt.Errorf("invalid srv:// URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("srv:// URL missing host: %s", srvURL)
	}

	_, addrs, err := net.LookupSRV("", "", u.Host)
	if err != nil {
		return "", fmt.Errorf("SRV lookup failed for %s: %w", u.Host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no SRV records found for %s", u.Host)
	}

	host := strings.TrimSuffix(addrs[0].Target, ".")
	return fmt.Sprintf("https://%s:%d%s", host, addrs[0].Port, u.Path), nil
}

func resolveCommand(cmd string) (string, error) {
	output, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
