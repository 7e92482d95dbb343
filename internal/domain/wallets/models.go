package wallets

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two wallet populations; a user who is both a farmer
// and a buyer holds two independent wallets.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
)

// IsValid checks if the role is one of the known wallet roles
func (r Role) IsValid() bool {
	return r == RoleFarmer || r == RoleBuyer
}

// Account identifies one wallet
type Account struct {
	UserID uuid.UUID
	Role   Role
}

// key gives a total order over accounts, used to lock wallet rows in a
// deterministic order and avoid deadlocks between concurrent transfers.
func (a Account) key() string {
	return a.UserID.String() + "/" + string(a.Role)
}

// Wallet holds a user's AgroCoin balance. Balances are whole coins and never
// negative; they change only through the ledger's transfer and credit
// operations.
type Wallet struct {
	UserID    uuid.UUID
	Role      Role
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
