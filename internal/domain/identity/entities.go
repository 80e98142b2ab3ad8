package identity

import (
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("identity not found")

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleUser       Role = "USER"
)

// Identity is a user account that may hold a signing wallet.
// Table: identities
type Identity struct {
	ID               string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	FirstName        string    `gorm:"column:first_name;type:varchar(128)" json:"firstName"`
	LastName         string    `gorm:"column:last_name;type:varchar(128)" json:"lastName"`
	Email            string    `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	Role             Role      `gorm:"column:role;type:varchar(16);not null;default:'USER'" json:"role"`
	WalletAddress    string    `gorm:"column:wallet_address;type:varchar(42)" json:"walletAddress,omitempty"`
	WalletAuthorized bool      `gorm:"column:wallet_authorized;not null;default:false" json:"walletAuthorized"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Identity) TableName() string { return "identities" }

func (i *Identity) FullName() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// QuorumEligible: admin role with a registered, authorized wallet.
func (i *Identity) QuorumEligible() bool {
	return i.Role == RoleAdmin && i.WalletAuthorized && i.WalletAddress != ""
}
