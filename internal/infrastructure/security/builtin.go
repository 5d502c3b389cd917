package security

import (
	"github.com/MustafaMerchant21/Nova/internal/domain"
)

type signature struct {
	expr    string
	level   domain.ThreatLevel
	message string
}

// builtinSignatures is the seed blacklist. Structural checks in heuristics.go
// cover the same ground from the parsed command; these catch the raw text.
var builtinSignatures = []signature{
	// destructive file operations
	{`(?i)\brm\s+(-[a-z-]*\s+)*-[a-z]*r[a-z]*\s+(-[a-z-]*\s+)*(/|/\*|~/?|~/\*|\$HOME/?|\$\{HOME\}/?)(\s|;|&|\||$)`, domain.ThreatCritical, "recursive delete of root or home directory"},
	{`(?i)\bremove-item\b.*(\s[a-z]:[\\/]?\*?(\s.*)?-recurse|-recurse\b.*\s[a-z]:[\\/]?\*?(\s|$))`, domain.ThreatCritical, "recursive delete of a drive root"},
	{`\bchown\s+-R\s+\S+\s+/(\s|$)`, domain.ThreatCritical, "recursive ownership change on root"},
	{`\bchmod\s+(-R\s+)?0?777\b`, domain.ThreatMedium, "world-writable permissions"},
	{`\bfind\s+.*\s-(delete|exec|execdir|ok|okdir)\b`, domain.ThreatLow, "find with -exec or -delete"},

	// filesystem and disks
	{`\bmkfs(\.[a-z0-9]+)?\s+`, domain.ThreatCritical, "filesystem format"},
	{`\b(fdisk|parted|wipefs)\s+`, domain.ThreatHigh, "disk partitioning"},
	{`\bdd\s+.*\bof=/dev/(sd|nvme|hd|vd|xvd|mmcblk|disk)`, domain.ThreatCritical, "raw write to block device"},
	{`\bdd\s+if=`, domain.ThreatMedium, "low-level disk operation"},
	{`>\s*/dev/(sd|nvme|hd|vd|xvd|mmcblk|disk)[a-z0-9]*`, domain.ThreatCritical, "redirect into block device"},
	{`(?i)\b(format-volume|clear-disk)\b`, domain.ThreatCritical, "PowerShell disk wipe"},

	// resource exhaustion
	{`:\(\)\s*\{[^}]*:\s*\|\s*:[^}]*&[^}]*\}`, domain.ThreatCritical, "fork bomb"},
	{`\bkill\s+(-9|-KILL|-SIGKILL)\s+(--\s+)?-1\b`, domain.ThreatCritical, "kill all processes"},
	{`\bkillall\s+-9\b`, domain.ThreatMedium, "kill processes by name"},

	// authentication and boot
	{`>\s*/etc/(passwd|shadow|sudoers|group)\b`, domain.ThreatCritical, "overwrite of account database"},
	{`>\s*/boot/`, domain.ThreatHigh, "modify boot files"},
	{`\brm\s+.*(/boot/|/vmlinuz)`, domain.ThreatCritical, "delete kernel files"},

	// forensic evasion
	{`\bhistory\s+-c\b`, domain.ThreatHigh, "clear command history"},
	{`>\s*~/\.(bash|zsh)_history`, domain.ThreatHigh, "wipe shell history"},
	{`\bshred\s+.*history`, domain.ThreatHigh, "shred history file"},
	{`(?i)\bclear-history\b`, domain.ThreatHigh, "clear PowerShell history"},

	// security controls
	{`\b(iptables\s+(-F|--flush)|ufw\s+disable)\b`, domain.ThreatHigh, "disable firewall"},
	{`(?i)\bnetsh\s+advfirewall\s+set\s+\S+\s+state\s+off\b`, domain.ThreatHigh, "disable Windows firewall"},
	{`(?i)\bset-mppreference\b.*-disable\w*\s+\$?(true|1)\b`, domain.ThreatHigh, "disable Windows Defender"},
	{`(?i)\bset-executionpolicy\s+(-executionpolicy\s+)?(unrestricted|bypass)\b`, domain.ThreatMedium, "weaken PowerShell execution policy"},
	{`\bsystemctl\s+(stop|disable|mask)\s+`, domain.ThreatMedium, "stop or disable a system service"},

	// persistence and injection
	{`\bcrontab\s+-r\b`, domain.ThreatHigh, "remove crontab"},
	{`>\s*/etc/cron`, domain.ThreatHigh, "modify cron files"},
	{`\bLD_PRELOAD=`, domain.ThreatHigh, "LD_PRELOAD code injection"},
	{`\bexport\s+PATH=(/tmp|/var/tmp|/dev/shm)`, domain.ThreatHigh, "PATH binary hijacking"},

	// package removal
	{`\b(apt(-get)?|yum|dnf)\s+(remove|purge|erase)\s+(.*\s)?(systemd|glibc|libc6|coreutils|bash)(\s|$)`, domain.ThreatCritical, "critical package removal"},

	// container escapes
	{`\bdocker\s+run\s+.*--privileged`, domain.ThreatHigh, "privileged container"},
	{`\bnsenter\s+.*(--target\s+1|-t\s*1)\b`, domain.ThreatHigh, "nsenter into init namespace"},
}

func builtinPatterns() []Pattern {
	patterns := make([]Pattern, 0, len(builtinSignatures))
	for _, sig := range builtinSignatures {
		p, err := newPattern(regexPrefix+sig.expr, KindRegex, sig.expr, sig.level, sig.message)
		if err != nil {
			panic(err)
		}
		p.Source = SourceBuiltin
		patterns = append(patterns, p)
	}
	return patterns
}
