package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// Fragment is a command-like piece of an AI response.
type Fragment struct {
	Source string
	Text   string
}

var (
	fencedBlock = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+.-]*)[^\\n]*\\n(.*?)```")
	inlineCode  = regexp.MustCompile("`([^`\\n]+)`")
	promptLine  = regexp.MustCompile(`^\s*(?:\$|PS [^>\n]*>)\s+(.+)$`)

	shellLanguages = setOf("", "sh", "bash", "zsh", "shell", "console", "terminal", "shellsession",
		"powershell", "ps1", "pwsh", "ps", "cmd", "bat", "batch", "fish", "ksh")

	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier|your)\s+(instructions|rules|constraints|guidelines|directions)`),
		regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|in|the|no\s+longer)\b`),
		regexp.MustCompile(`(?i)\b(developer|dan|god)\s+mode\b`),
		regexp.MustCompile(`(?i)\bjailbr(eak|oken)\b`),
		regexp.MustCompile(`(?i)\b(bypass|disable|skip|circumvent)\s+(the\s+)?(security|safety|validator|validation|guardrails?|filters?)\b`),
	}
	privilegeRequestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(run|execute|start|launch|open)\b[^.\n]{0,40}\bas\s+(root|administrator|admin|superuser|system)\b`),
		regexp.MustCompile(`(?i)\b(disable|turn\s+off|stop|uninstall|deactivate)\s+(the\s+|your\s+)?(firewall|antivirus|anti-virus|windows\s+defender|defender|selinux|apparmor|uac|security\s+software)\b`),
	}
)

// ExtractFragments pulls command-like substrings out of an AI response:
// fenced shell blocks, shell prompt lines, inline code spans and JSON
// automation payloads. It also returns the prose left after removing fences.
func ExtractFragments(response string) ([]Fragment, string) {
	var fragments []Fragment

	for i, match := range fencedBlock.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(match[1])
		body := match[2]
		source := fmt.Sprintf("code block %d", i+1)
		switch {
		case lang == "json" || lang == "yaml" || lang == "yml":
			if text, ok := automationText(body, lang); ok {
				fragments = append(fragments, Fragment{Source: source, Text: text})
			}
		case shellLanguages[lang]:
			fragments = append(fragments, Fragment{Source: source, Text: stripPrompts(body)})
		}
	}

	prose := fencedBlock.ReplaceAllString(response, "\n")

	if text, ok := automationText(strings.TrimSpace(prose), "json"); ok {
		fragments = append(fragments, Fragment{Source: "json payload", Text: text})
	}

	for i, line := range strings.Split(prose, "\n") {
		if m := promptLine.FindStringSubmatch(line); m != nil {
			fragments = append(fragments, Fragment{Source: fmt.Sprintf("prompt line %d", i+1), Text: m[1]})
		}
	}
	for _, match := range inlineCode.FindAllStringSubmatch(prose, -1) {
		if text := strings.TrimSpace(match[1]); text != "" {
			fragments = append(fragments, Fragment{Source: "inline code", Text: text})
		}
	}
	return fragments, prose
}

func stripPrompts(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if m := promptLine.FindStringSubmatch(line); m != nil {
			lines[i] = m[1]
		}
	}
	return strings.Join(lines, "\n")
}

// automationText decodes an automation payload and returns its command text.
func automationText(body, lang string) (string, bool) {
	if lang == "json" && !strings.HasPrefix(strings.TrimSpace(body), "{") {
		return "", false
	}
	var req domain.AutomationRequest
	if err := decodeAutomation(body, lang, &req); err != nil {
		return "", false
	}
	automation, err := req.Resolve()
	if err != nil {
		return "", false
	}
	return automation.Text(), true
}

func decodeAutomation(body, lang string, req *domain.AutomationRequest) error {
	if lang == "json" {
		return json.Unmarshal([]byte(body), req)
	}
	return yaml.Unmarshal([]byte(body), req)
}

// ValidateAIResponse implements ports.SecurityValidator. The whole blob is
// untrusted: extracted commands are validated as scripts, the blacklist runs
// over the raw text and the prose is checked for injection attempts.
func (v *Validator) ValidateAIResponse(response string) (domain.ValidationResult, error) {
	if err := v.checkSize(response); err != nil {
		return domain.ValidationResult{}, err
	}

	var result domain.ValidationResult
	fragments, prose := ExtractFragments(response)
	for _, fragment := range fragments {
		fragmentResult, err := v.inspectScript(fragment.Text)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("%s: %w", fragment.Source, err)
		}
		result.Merge(fragmentResult, fragment.Source+": ")
	}

	normalized := norm.NFKC.String(response)
	matches, err := v.registry.Match(normalized)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	seen := make(map[string]bool, len(result.BlockedPatterns))
	for _, pattern := range result.BlockedPatterns {
		seen[pattern] = true
	}
	for _, p := range matches {
		if seen[p.Raw] {
			continue
		}
		result.Flag(p.Level, "response text: "+p.Message, p.Raw)
	}

	for _, re := range injectionPatterns {
		if m := re.FindString(prose); m != "" {
			result.Flag(domain.ThreatHigh, fmt.Sprintf("prompt injection phrase %q", m), HeuristicPattern(HeuristicPromptInjection))
		}
	}
	for _, re := range privilegeRequestPatterns {
		if m := re.FindString(prose); m != "" {
			result.Flag(domain.ThreatHigh, fmt.Sprintf("response asks for elevated privileges: %q", m), HeuristicPattern(HeuristicPrivilegeRequest))
		}
	}
	if hasHiddenCharacters(response) {
		result.Flag(domain.ThreatMedium, "response contains zero-width or bidirectional control characters", HeuristicPattern(HeuristicHiddenContent))
	}
	return result, nil
}

func hasHiddenCharacters(text string) bool {
	for _, r := range text {
		switch {
		case r >= 0x200B && r <= 0x200F,
			r >= 0x202A && r <= 0x202E,
			r >= 0x2060 && r <= 0x2064,
			r >= 0x2066 && r <= 0x2069,
			r == 0xFEFF:
			return true
		}
	}
	return false
}
