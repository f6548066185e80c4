package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	MobileNo     string    `json:"mobileNo"`
	City         string    `json:"city"`
	Address      string    `json:"address"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is what signup, signin and profile updates return to the client.
type Session struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	MobileNo string `json:"mobileNo"`
	City     string `json:"city"`
	Address  string `json:"address"`
	IsAdmin  bool   `json:"isAdmin"`
	Token    string `json:"token"`
}

func NewSession(u *User, token string) Session {
	return Session{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		MobileNo: u.MobileNo,
		City:     u.City,
		Address:  u.Address,
		IsAdmin:  u.IsAdmin,
		Token:    token,
	}
}
