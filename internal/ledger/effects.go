package ledger

import (
	"stash/internal/core"
	"stash/internal/storage"
)

// balanceEffects translates a transaction into its balance increments.
// With invert the signs flip, which is how deletion reverses a
// committed transaction. Any write that decreases a goal is guarded so
// goal balances can never go negative, in either direction.
func balanceEffects(t core.Transaction, invert bool) []storage.Write {
	amt := t.Amount.Cents
	if invert {
		amt = -amt
	}

	switch t.Type {
	case core.TxExpense:
		return []storage.Write{storage.AddToBalance(t.FromAccountID, -amt)}
	case core.TxIncome:
		return []storage.Write{storage.AddToBalance(t.ToAccountID, amt)}
	case core.TxTransfer:
		return []storage.Write{
			storage.AddToBalance(t.FromAccountID, -amt),
			storage.AddToBalance(t.ToAccountID, amt),
		}
	case core.TxGoalPayment:
		if t.IsGoalDeposit() {
			return []storage.Write{
				storage.AddToBalance(t.FromAccountID, -amt),
				storage.AddToGoal(t.GoalID, amt, amt < 0),
			}
		}
		return []storage.Write{
			storage.AddToGoal(t.GoalID, -amt, amt > 0),
			storage.AddToBalance(t.ToAccountID, amt),
		}
	}
	return nil
}
