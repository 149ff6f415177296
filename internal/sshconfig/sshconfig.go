package sshconfig

import (
	"bufio"
	"os"
	osuser "os/user"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads an OpenSSH-style config file and returns the settings that
// apply to the given host alias. A Host block is selected only by an exact
// alias token; keys are lowercased; values keep their internal spacing.
// A missing or unreadable file reads as empty.
func Parse(path, host string) map[string]string {
	out := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	inHostSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "host ") {
			inHostSection = false
			for _, alias := range strings.Fields(line[5:]) {
				if alias == host {
					inHostSection = true
					break
				}
			}
			continue
		}
		if !inHostSection {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		out[strings.ToLower(key)] = value
	}
	return out
}

func splitKeyValue(line string) (string, string, bool) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return "", "", false
	}
	value := strings.TrimSpace(line[idx:])
	if value == "" {
		return "", "", false
	}
	return line[:idx], value, true
}

// Resolved is a fully determined connection target. Host keeps the requested
// alias for identifier derivation; Target is what gets dialed.
type Resolved struct {
	Host   string
	Target string
	User   string
	Port   int
}

// Resolve applies precedence per field: the explicit request value, then the
// config file, then defaults (port 22, current OS user). A hostname entry in
// the file replaces the dial target but never the alias.
func Resolve(configPath, host, user string, port int) Resolved {
	cfg := Parse(configPath, host)
	out := Resolved{Host: host, Target: host, User: user, Port: port}
	if out.User == "" {
		out.User = cfg["user"]
	}
	if out.Port == 0 && cfg["port"] != "" {
		if p, err := strconv.Atoi(cfg["port"]); err == nil {
			out.Port = p
		}
	}
	if hn := cfg["hostname"]; hn != "" {
		out.Target = hn
	}
	if out.User == "" {
		if u, err := osuser.Current(); err == nil {
			out.User = u.Username
		}
	}
	if out.Port == 0 {
		out.Port = 22
	}
	return out
}
