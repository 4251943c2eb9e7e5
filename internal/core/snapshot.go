package core

// OwnerSnapshot is the full current result set pushed to store
// subscribers after every committed batch touching the owner.
type OwnerSnapshot struct {
	OwnerID      string
	Accounts     []Account
	Goals        []Goal
	Transactions []Transaction // most recent first
	TotalBalance Money         // sum over active accounts
}
