package models

import "time"

// Identity — аутентифицированный пользователь.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// Session — состояние аутентификации процесса.
// Authenticated == true влечёт Identity != nil.
type Session struct {
	Authenticated  bool      `json:"authenticated"`
	Identity       *Identity `json:"identity,omitempty"`
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
	// Verified — начальная проверка сессии завершена (успешно или нет).
	Verified bool `json:"verified"`
}

// Credentials — вход по логину (e-mail или nickname) и паролю.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RegisterData — данные регистрации.
type RegisterData struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Nickname string `json:"nickname,omitempty"`
	Password string `json:"password"`
}
