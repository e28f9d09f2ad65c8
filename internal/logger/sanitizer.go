package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer 負責過濾日誌中的敏感資訊
//
// 限制說明：
//   - SanitizeArgs() 只遮罩「敏感 key 的 value」
//   - Sanitize() 以正規表示式處理字串內容，例如命令列參數中的 --drive-client-secret=xxx
//   - 藏在非敏感 key、且不符合任何規則的資料不會被遮罩
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule 單一過濾規則
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var sensitiveKeys = []string{
	"password", "pass", "secret", "token", "credential", "api_key", "apikey", "auth",
}

// NewSanitizer 建立預設 sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: defaultSanitizeRules()}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// rclone backend flags: --drive-client-secret=x, --s3-secret-access-key x, --webdav-pass x
		{regexp.MustCompile(`(?i)(--[a-z0-9]+-(?:client-secret|secret-access-key|token|pass|password))([= ])\S+`), "${1}${2}***"},

		// rclone config password from the environment
		{regexp.MustCompile(`(?i)RCLONE_CONFIG_PASS=\S+`), "RCLONE_CONFIG_PASS=***"},

		// generic key=value secrets
		{regexp.MustCompile(`(?i)\b(password|passwd|token|secret)=\S+`), "${1}=***"},
		{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},

		// URL userinfo (webdav/sftp remotes written inline)
		{regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`), "${1}***:***@"},

		// home directories
		{regexp.MustCompile(`/home/[^/\s]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/***"},
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\\s]+`), "***:\\Users\\***"},
	}
}

// Sanitize applies every rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		input = rule.Pattern.ReplaceAllString(input, rule.Replacement)
	}
	return input
}

// SanitizeArgs masks the values of sensitive keys in slog-style key/value pairs
// and runs string values of ordinary keys through Sanitize
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i+1 < len(result); i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}

		var value string
		switch v := result[i+1].(type) {
		case string:
			value = v
		case error:
			value = v.Error()
		default:
			continue
		}

		if isSensitiveKey(key) {
			result[i+1] = maskValue(value)
		} else {
			result[i+1] = s.Sanitize(value)
		}
	}

	return result
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}

// maskValue 遮蔽值（保留首尾字元）
func maskValue(value string) string {
	switch {
	case len(value) <= 2:
		return "***"
	case len(value) <= 8:
		return value[:1] + "***"
	default:
		return value[:1] + "***" + value[len(value)-1:]
	}
}
