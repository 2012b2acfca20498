// redact маскирует чувствительные данные перед записью в логи
// (e-mail, учётные данные), оставляя полезный для отладки контекст.
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один '@', иначе возвращается "***";
//   - локальная часть сокращается до первых двух рун + "***";
//   - при локальной части ≤ 2 рун возвращается "***@<domain>";
//   - домен не изменяется.
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для учётных данных в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Fingerprint возвращает короткий отпечаток токена: последние 4 символа.
// Позволяет сопоставлять записи логов об одном и том же токене без утечки.
func Fingerprint(tok string) string {
	if len(tok) < 12 {
		return Token()
	}

	return "…" + tok[len(tok)-4:]
}
