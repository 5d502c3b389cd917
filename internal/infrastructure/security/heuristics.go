package security

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/pkg/shellparse"
)

// Heuristic ids, reported in BlockedPatterns as "heuristic:<id>".
const (
	HeuristicDestructiveRecursion = "destructive-recursion"
	HeuristicRecursiveDelete      = "recursive-delete"
	HeuristicPrivilegeEscalation  = "privilege-escalation"
	HeuristicRemoteCodeEval       = "remote-code-eval"
	HeuristicNetworkExfiltration  = "network-exfiltration"
	HeuristicObfuscatedExec       = "obfuscated-exec"
	HeuristicNestedShell          = "nested-shell"
	HeuristicSystemWrite          = "system-write"
	HeuristicSuspiciousInput      = "suspicious-input"
	HeuristicUnicodeHomoglyph     = "unicode-homoglyph"
	HeuristicUnparseable          = "unparseable"
	HeuristicPromptInjection      = "prompt-injection"
	HeuristicPrivilegeRequest     = "privilege-request"
	HeuristicHiddenContent        = "hidden-content"
)

// HeuristicPattern returns the BlockedPatterns entry for a heuristic id.
func HeuristicPattern(id string) string {
	return "heuristic:" + id
}

// HeuristicCategory describes one structural check for summaries.
type HeuristicCategory struct {
	ID          string
	Level       string
	Description string
	AIOnly      bool
}

// HeuristicCategories lists every structural check the validator runs.
func HeuristicCategories() []HeuristicCategory {
	return []HeuristicCategory{
		{HeuristicDestructiveRecursion, "critical", "recursive rm/chmod/chown on root, home or system directories", false},
		{HeuristicRecursiveDelete, "low", "recursive delete of any other path", false},
		{HeuristicPrivilegeEscalation, "high", "sudo, su, doas, pkexec, runas", false},
		{HeuristicRemoteCodeEval, "critical", "downloaded content executed by a shell or interpreter", false},
		{HeuristicNetworkExfiltration, "high", "file uploads, raw sockets, copies to remote hosts", false},
		{HeuristicObfuscatedExec, "high", "decoded payloads piped into a shell, eval of variables", false},
		{HeuristicNestedShell, "inner", "sh -c / eval payloads re-validated recursively", false},
		{HeuristicSystemWrite, "high", "redirects into system paths or block devices", false},
		{HeuristicSuspiciousInput, "high", "NUL or control bytes", false},
		{HeuristicUnicodeHomoglyph, "medium", "text changes under NFKC normalisation", false},
		{HeuristicUnparseable, "low", "shell parser rejected the text", false},
		{HeuristicPromptInjection, "high", "instructions to ignore rules or bypass the validator", true},
		{HeuristicPrivilegeRequest, "high", "requests to run as root or disable security tooling", true},
		{HeuristicHiddenContent, "medium", "zero-width or bidirectional control characters", true},
	}
}

type finding struct {
	id      string
	level   domain.ThreatLevel
	warning string
}

type callCheck func(calls []shellparse.Call) []finding

var callChecks = []callCheck{
	checkRecursive,
	checkPrivilege,
	checkRemoteEval,
	checkExfiltration,
	checkObfuscation,
	checkSystemWrite,
}

func lowerName(call shellparse.Call) string {
	return strings.ToLower(call.Name)
}

func setOf(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

var (
	shells       = setOf("sh", "bash", "zsh", "dash", "ksh", "fish", "ash", "busybox")
	interpreters = setOf("sh", "bash", "zsh", "dash", "ksh", "fish", "ash", "python", "python2", "python3",
		"perl", "ruby", "node", "php", "pwsh", "powershell", "iex", "invoke-expression", "sudo", "doas", "source", ".")
	fetchers = setOf("curl", "wget", "fetch", "iwr", "invoke-webrequest", "irm", "invoke-restmethod", "certutil")

	remoteSubst   = regexp.MustCompile("(?i)(\\$\\(|<\\(|`)\\s*(sudo\\s+)?(curl|wget|iwr|irm|invoke-webrequest|invoke-restmethod)\\b")
	driveRoot     = regexp.MustCompile(`(?i)^[a-z]:/?\*?$`)
	remoteSpec    = regexp.MustCompile(`^([^/@\s]+@)?[a-zA-Z0-9.\-]+:`)
	hexEscape     = regexp.MustCompile(`\\x[0-9a-fA-F]{2}`)
	systemTargets = []string{"/etc/", "/boot/", "/usr/", "/bin/", "/sbin/", "/lib/", "/lib64/", "/sys/", "/proc/"}
	blockDevices  = []string{"/dev/sd", "/dev/nvme", "/dev/hd", "/dev/vd", "/dev/xvd", "/dev/mmcblk", "/dev/disk"}
	safeDevices   = setOf("/dev/null", "/dev/stdout", "/dev/stderr", "/dev/tty", "/dev/zero")
	systemDirs    = setOf("/bin", "/boot", "/dev", "/etc", "/home", "/lib", "/lib64", "/opt", "/proc", "/root",
		"/sbin", "/srv", "/sys", "/usr", "/var", "/System", "/Library", "/Applications", "/Users")
)

// flagArgs separates flags from operands, honouring "--".
func flagArgs(args []string) (flags, operands []string) {
	endOfFlags := false
	for _, arg := range args {
		switch {
		case endOfFlags:
			operands = append(operands, arg)
		case arg == "--":
			endOfFlags = true
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			flags = append(flags, arg)
		default:
			operands = append(operands, arg)
		}
	}
	return flags, operands
}

func hasShortFlag(flags []string, letters string) bool {
	for _, flag := range flags {
		if strings.HasPrefix(flag, "--") {
			continue
		}
		if strings.ContainsAny(flag[1:], letters) {
			return true
		}
	}
	return false
}

func hasFlag(flags []string, names ...string) bool {
	for _, flag := range flags {
		for _, name := range names {
			if strings.EqualFold(flag, name) {
				return true
			}
		}
	}
	return false
}

// isDangerousTarget reports whether a recursive operation on target would hit
// the filesystem root, a home directory, a top-level system directory or
// everything under the working directory.
func isDangerousTarget(target string) bool {
	target = strings.Trim(target, `"'`)
	if target == "" {
		return false
	}
	normalized := strings.ReplaceAll(target, `\`, "/")
	if driveRoot.MatchString(normalized) {
		return true
	}
	switch normalized {
	case "*", ".", "..", "./*", "../*", ".*":
		return true
	}
	cleaned := path.Clean(normalized)
	switch cleaned {
	case "/", "/*", "~", "~/*", "$HOME", "${HOME}", "$HOME/*", "${HOME}/*", "..", "$env:USERPROFILE", "$env:SystemDrive":
		return true
	}
	if systemDirs[strings.TrimSuffix(cleaned, "/*")] {
		return true
	}
	for _, prefix := range []string{"~", "$HOME", "${HOME}"} {
		if !strings.HasPrefix(normalized, prefix+"/") {
			continue
		}
		for _, seg := range strings.Split(strings.TrimPrefix(normalized, prefix), "/") {
			if seg == ".." {
				return true
			}
		}
	}
	return false
}

func checkRecursive(calls []shellparse.Call) []finding {
	var out []finding
	for _, call := range calls {
		if len(call.Args) == 0 {
			continue
		}
		name := lowerName(call)
		flags, operands := flagArgs(call.Args[1:])

		var recursive, deletes bool
		switch name {
		case "rm":
			recursive = hasShortFlag(flags, "rR") || hasFlag(flags, "--recursive")
			deletes = true
		case "chmod", "chown", "chgrp":
			recursive = hasShortFlag(flags, "R") || hasFlag(flags, "--recursive")
		case "remove-item", "ri", "del", "erase", "rd", "rmdir":
			recursive = hasFlag(flags, "-recurse", "-r", "/s")
			deletes = true
			if !recursive {
				for _, op := range operands {
					if strings.EqualFold(op, "/s") {
						recursive = true
					}
				}
			}
		default:
			continue
		}
		if !recursive {
			continue
		}

		dangerous := ""
		for _, op := range operands {
			if isDangerousTarget(op) {
				dangerous = op
				break
			}
		}
		switch {
		case dangerous != "":
			out = append(out, finding{
				id:      HeuristicDestructiveRecursion,
				level:   domain.ThreatCritical,
				warning: fmt.Sprintf("recursive %s on %s", call.Name, dangerous),
			})
		case deletes:
			out = append(out, finding{
				id:      HeuristicRecursiveDelete,
				level:   domain.ThreatLow,
				warning: fmt.Sprintf("recursive delete of %s", strings.Join(operands, " ")),
			})
		}
	}
	return out
}

func checkPrivilege(calls []shellparse.Call) []finding {
	var out []finding
	for _, call := range calls {
		name := lowerName(call)
		switch name {
		case "sudo", "su", "doas", "pkexec", "runas", "gsudo":
			out = append(out, finding{
				id:      HeuristicPrivilegeEscalation,
				level:   domain.ThreatHigh,
				warning: fmt.Sprintf("privilege escalation via %s", call.Name),
			})
		case "start-process", "saps", "start":
			for i, arg := range call.Args {
				if strings.EqualFold(arg, "-verb") && i+1 < len(call.Args) && strings.EqualFold(call.Args[i+1], "runas") {
					out = append(out, finding{
						id:      HeuristicPrivilegeEscalation,
						level:   domain.ThreatHigh,
						warning: "elevated process via Start-Process -Verb RunAs",
					})
					break
				}
			}
		}
	}
	return out
}

func checkRemoteEval(calls []shellparse.Call) []finding {
	var out []finding
	add := func(warning string) {
		out = append(out, finding{id: HeuristicRemoteCodeEval, level: domain.ThreatCritical, warning: warning})
	}
	for _, call := range calls {
		name := lowerName(call)
		joined := strings.Join(call.Args, " ")
		switch {
		case fetchers[name] && call.PipesInto(interpreters):
			add(fmt.Sprintf("%s output piped into %s", call.Name, strings.Join(call.Downstream, " | ")))
		case (shells[name] || interpreters[name] || name == "eval") && remoteSubst.MatchString(joined):
			add(fmt.Sprintf("%s executes downloaded content", call.Name))
		case (name == "iex" || name == "invoke-expression") && containsFold(joined, "downloadstring", "iwr", "invoke-webrequest", "irm", "invoke-restmethod", "net.webclient"):
			add("Invoke-Expression of downloaded content")
		}
	}
	return out
}

func containsFold(text string, needles ...string) bool {
	lower := strings.ToLower(text)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

func checkExfiltration(calls []shellparse.Call) []finding {
	var out []finding
	add := func(warning string) {
		out = append(out, finding{id: HeuristicNetworkExfiltration, level: domain.ThreatHigh, warning: warning})
	}
	for _, call := range calls {
		name := lowerName(call)
		args := call.Args
		if len(args) > 0 {
			args = args[1:]
		}
		switch name {
		case "curl":
			if curlUploads(args) {
				add("curl uploads local data")
			}
		case "wget":
			for _, arg := range args {
				if strings.HasPrefix(arg, "--post-file") || strings.HasPrefix(arg, "--body-file") {
					add("wget uploads a local file")
					break
				}
			}
		case "nc", "ncat", "netcat", "socat", "telnet":
			add(fmt.Sprintf("raw network connection via %s", call.Name))
		case "scp", "rsync", "sftp":
			_, operands := flagArgs(args)
			if len(operands) > 0 && remoteSpec.MatchString(operands[len(operands)-1]) {
				add(fmt.Sprintf("%s copies to remote host %s", call.Name, operands[len(operands)-1]))
			}
		case "invoke-webrequest", "iwr", "invoke-restmethod", "irm":
			if hasFlag(args, "-infile") {
				add("PowerShell web request uploads a local file")
			}
		}
		if referencesDevTCP(call) {
			add("connection through /dev/tcp or /dev/udp")
		}
	}
	return out
}

func curlUploads(args []string) bool {
	dataFlags := setOf("-d", "--data", "--data-binary", "--data-urlencode", "--data-raw", "-F", "--form")
	for i, arg := range args {
		switch {
		case arg == "-T" || arg == "--upload-file" || strings.HasPrefix(arg, "--upload-file="):
			return true
		case strings.HasPrefix(arg, "-T") && len(arg) > 2:
			return true
		case dataFlags[arg] && i+1 < len(args) && strings.Contains(args[i+1], "@"):
			return true
		case (strings.HasPrefix(arg, "-d@") || strings.HasPrefix(arg, "--data=@") || strings.HasPrefix(arg, "--data-binary=@")):
			return true
		}
	}
	return false
}

func referencesDevTCP(call shellparse.Call) bool {
	for _, arg := range call.Args {
		if strings.Contains(arg, "/dev/tcp/") || strings.Contains(arg, "/dev/udp/") {
			return true
		}
	}
	for _, redir := range call.Redirects {
		if strings.HasPrefix(redir.Target, "/dev/tcp/") || strings.HasPrefix(redir.Target, "/dev/udp/") {
			return true
		}
	}
	return false
}

func checkObfuscation(calls []shellparse.Call) []finding {
	var out []finding
	add := func(warning string) {
		out = append(out, finding{id: HeuristicObfuscatedExec, level: domain.ThreatHigh, warning: warning})
	}
	for _, call := range calls {
		name := lowerName(call)
		var flags []string
		if len(call.Args) > 0 {
			flags, _ = flagArgs(call.Args[1:])
		}
		switch name {
		case "base64", "base32":
			if (hasFlag(flags, "-d", "--decode", "-D") || hasShortFlag(flags, "dD")) && call.PipesInto(interpreters) {
				add(fmt.Sprintf("%s decoded payload piped into a shell", call.Name))
			}
		case "xxd":
			if hasShortFlag(flags, "r") && call.PipesInto(interpreters) {
				add("xxd decoded payload piped into a shell")
			}
		case "echo", "printf":
			if call.PipesInto(interpreters) && hexEscape.MatchString(strings.Join(call.Args, " ")) {
				add("escaped payload piped into a shell")
			}
		case "eval":
			for _, arg := range call.Args[1:] {
				if strings.HasPrefix(arg, "$") && !strings.HasPrefix(arg, "$(") {
					add("eval of a variable")
					break
				}
			}
		case "powershell", "pwsh", "powershell.exe", "pwsh.exe":
			if hasFlag(flags, "-encodedcommand", "-enc", "-e", "-ec") {
				add("PowerShell encoded command")
			}
		}
	}
	return out
}

func checkSystemWrite(calls []shellparse.Call) []finding {
	var out []finding
	for _, call := range calls {
		for _, redir := range call.Redirects {
			if redir.IsWrite() && isSystemTarget(redir.Target) {
				out = append(out, finding{
					id:      HeuristicSystemWrite,
					level:   domain.ThreatHigh,
					warning: fmt.Sprintf("writes to %s", redir.Target),
				})
			}
		}
		if lowerName(call) == "tee" && len(call.Args) > 1 {
			_, operands := flagArgs(call.Args[1:])
			for _, target := range operands {
				if isSystemTarget(target) {
					out = append(out, finding{
						id:      HeuristicSystemWrite,
						level:   domain.ThreatHigh,
						warning: fmt.Sprintf("tee writes to %s", target),
					})
				}
			}
		}
	}
	return out
}

func isSystemTarget(target string) bool {
	target = strings.Trim(target, `"'`)
	if safeDevices[target] {
		return false
	}
	for _, prefix := range systemTargets {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	for _, prefix := range blockDevices {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

// nestedPayloads returns the command strings a call would hand to another
// shell: sh -c "...", eval ..., pwsh -Command "...".
func nestedPayloads(calls []shellparse.Call) []string {
	var out []string
	for _, call := range calls {
		if len(call.Args) < 2 {
			continue
		}
		name := lowerName(call)
		switch {
		case shells[name] || name == "su":
			for i, arg := range call.Args[1:] {
				if arg == "-c" || (strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.HasSuffix(arg, "c")) {
					if j := i + 2; j < len(call.Args) {
						out = append(out, call.Args[j])
					}
					break
				}
			}
		case name == "eval":
			out = append(out, strings.Join(call.Args[1:], " "))
		case name == "powershell" || name == "pwsh" || name == "powershell.exe" || name == "pwsh.exe":
			for i, arg := range call.Args[1:] {
				if strings.EqualFold(arg, "-command") || strings.EqualFold(arg, "-c") {
					if j := i + 2; j < len(call.Args) {
						out = append(out, strings.Join(call.Args[j:], " "))
					}
					break
				}
			}
		}
	}
	return out
}

// fallbackCalls tokenises text that the shell parser rejected: statements
// split on newlines, ';', '&&' and '||', pipelines on '|'.
func fallbackCalls(text string) []shellparse.Call {
	replacer := strings.NewReplacer("&&", "\n", "||", "\n", ";", "\n")
	var calls []shellparse.Call
	for _, stmt := range strings.Split(replacer.Replace(text), "\n") {
		segments := strings.Split(stmt, "|")
		var pipeline []shellparse.Call
		for _, segment := range segments {
			fields := strings.Fields(segment)
			if len(fields) == 0 {
				continue
			}
			call := shellparse.Call{}
			for i := 0; i < len(fields); i++ {
				field := fields[i]
				if op, target, ok := splitRedirect(field); ok {
					if target == "" && i+1 < len(fields) {
						i++
						target = fields[i]
					}
					call.Redirects = append(call.Redirects, shellparse.Redirect{Op: op, Target: target})
					continue
				}
				call.Args = append(call.Args, strings.Trim(field, `"'`))
			}
			if len(call.Args) > 0 {
				call.Name = path.Base(strings.ReplaceAll(call.Args[0], `\`, "/"))
			}
			pipeline = append(pipeline, call)
		}
		for i := range pipeline {
			for _, next := range pipeline[i+1:] {
				pipeline[i].Downstream = append(pipeline[i].Downstream, next.Name)
			}
		}
		calls = append(calls, pipeline...)
	}
	return calls
}

func splitRedirect(field string) (op, target string, ok bool) {
	trimmed := strings.TrimLeft(field, "0123456789&")
	for _, candidate := range []string{">>", ">|", ">", "<"} {
		if strings.HasPrefix(trimmed, candidate) {
			return candidate, trimmed[len(candidate):], true
		}
	}
	return "", "", false
}
