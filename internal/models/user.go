package models

import (
	"encoding/json"
	"strings"
)

// User — пользователь в ответах бэкенда (/auth/me, участники чатов).
type User struct {
	ID       string `json:"_id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"lastName,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Username string `json:"username,omitempty"`
	Rank     string `json:"rank,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// UnmarshalJSON принимает id как "_id" или "id" и ссылку-строку вместо объекта.
func (u *User) UnmarshalJSON(b []byte) error {
	var ref string
	if err := json.Unmarshal(b, &ref); err == nil {
		*u = User{ID: ref}
		return nil
	}

	type plain User
	var raw struct {
		plain
		AltID string `json:"id"`
	}

	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*u = User(raw.plain)
	if u.ID == "" {
		u.ID = raw.AltID
	}

	return nil
}

// Identity строит Identity. Имя: nickname, username, "name lastName", e-mail.
func (u User) Identity() *Identity {
	name := u.Nickname
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = strings.TrimSpace(u.Name + " " + u.LastName)
	}
	if name == "" {
		name = u.Email
	}

	return &Identity{ID: u.ID, DisplayName: name, Role: u.Rank}
}
