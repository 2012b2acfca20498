package transport

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// credentialInfo — то, что можно узнать о credential без проверки подписи.
type credentialInfo struct {
	JWT       bool
	Subject   string
	ExpiresAt time.Time
}

// inspectCredential разбирает JWT без проверки подписи (подпись проверяет бэкенд)
// только для логирования. Непрозрачные токены допустимы.
func inspectCredential(tok string) credentialInfo {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return credentialInfo{}
	}

	info := credentialInfo{JWT: true, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info
}
