package models

import "time"

// User roles assignable at provisioning time. Admins live in their own
// pool and always carry RoleAdmin.
const (
	RoleClient       = "client"
	RoleDistributeur = "distributeur"
	RoleAdmin        = "admin"
)

var AllowedUserRoles = []string{RoleClient, RoleDistributeur}

// UserAccount is a balance-holding customer account. Balance is an
// integer amount in minor units and is only ever mutated by the ledger
// service.
type UserAccount struct {
	ID            int       `json:"id" db:"id"`
	Fullname      string    `json:"fullname" db:"fullname"`
	DOB           time.Time `json:"dob" db:"dob"`
	IDCard        string    `json:"idCard" db:"id_card"`
	Phone         string    `json:"phone" db:"phone"`
	Address       string    `json:"address" db:"address"`
	Email         string    `json:"email" db:"email"`
	Password      string    `json:"-" db:"password"`
	Role          string    `json:"role" db:"role"`
	Blocked       bool      `json:"blocked" db:"blocked"`
	AccountNumber string    `json:"accountNumber" db:"account_number"`
	Balance       int64     `json:"balance" db:"balance"`
	Version       int       `json:"-" db:"version"` // for optimistic locking
	FileURL       string    `json:"fileUrl,omitempty" db:"file_url"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// AdminAccount is the operator-side account. Admins hold the float that
// deposits are drawn from.
type AdminAccount struct {
	ID        int       `json:"id" db:"id"`
	Fullname  string    `json:"fullname" db:"fullname"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"-" db:"version"`
	Photo     string    `json:"photo,omitempty" db:"photo"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Principal is the authenticated identity resolved by the auth
// middleware: exactly one of User or Admin is set. Handlers read role,
// id and balance through the accessors instead of re-querying pools.
type Principal struct {
	User  *UserAccount
	Admin *AdminAccount
}

func (p Principal) IsAdmin() bool {
	return p.Admin != nil
}

func (p Principal) ID() int {
	if p.Admin != nil {
		return p.Admin.ID
	}
	if p.User != nil {
		return p.User.ID
	}
	return 0
}

func (p Principal) Role() string {
	if p.Admin != nil {
		return RoleAdmin
	}
	if p.User != nil {
		return p.User.Role
	}
	return ""
}

func (p Principal) Fullname() string {
	if p.Admin != nil {
		return p.Admin.Fullname
	}
	if p.User != nil {
		return p.User.Fullname
	}
	return ""
}

func (p Principal) Email() string {
	if p.Admin != nil {
		return p.Admin.Email
	}
	if p.User != nil {
		return p.User.Email
	}
	return ""
}

func (p Principal) Balance() int64 {
	if p.Admin != nil {
		return p.Admin.Balance
	}
	if p.User != nil {
		return p.User.Balance
	}
	return 0
}

// AccountNumber returns the human-readable account number, empty for
// admins.
func (p Principal) AccountNumber() string {
	if p.User != nil {
		return p.User.AccountNumber
	}
	return ""
}

// PublicProfile is the caller-visible projection of a principal,
// returned by login and /auth/me.
type PublicProfile struct {
	ID            int    `json:"id"`
	Fullname      string `json:"fullname"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	AccountNumber string `json:"accountNumber,omitempty"`
	Balance       int64  `json:"balance"`
}

func (p Principal) Profile() PublicProfile {
	return PublicProfile{
		ID:            p.ID(),
		Fullname:      p.Fullname(),
		Email:         p.Email(),
		Role:          p.Role(),
		AccountNumber: p.AccountNumber(),
		Balance:       p.Balance(),
	}
}
