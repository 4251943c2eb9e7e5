package storage

import (
	"context"
	"fmt"

	"stash/internal/core"
)

// Subscribe registers a listener for an owner's data. The channel
// receives a full OwnerSnapshot after every committed batch touching
// that owner; a slow listener only ever sees the latest snapshot. The
// subscription ends when ctx is done.
func (r *Repository) Subscribe(ctx context.Context, ownerID string) <-chan core.OwnerSnapshot {
	ch := make(chan core.OwnerSnapshot, 1)

	r.mu.Lock()
	r.subs[ownerID] = append(r.subs[ownerID], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		channels := r.subs[ownerID]
		for i, c := range channels {
			if c == ch {
				r.subs[ownerID] = append(channels[:i], channels[i+1:]...)
				break
			}
		}
		if len(r.subs[ownerID]) == 0 {
			delete(r.subs, ownerID)
		}
		r.mu.Unlock()
	}()

	return ch
}

// OwnerSnapshot assembles the owner's full current result set.
func (r *Repository) OwnerSnapshot(ctx context.Context, ownerID string) (core.OwnerSnapshot, error) {
	accounts, err := r.ListAccounts(ctx, ownerID)
	if err != nil {
		return core.OwnerSnapshot{}, fmt.Errorf("snapshot accounts: %w", err)
	}
	goals, err := r.ListGoals(ctx, ownerID)
	if err != nil {
		return core.OwnerSnapshot{}, fmt.Errorf("snapshot goals: %w", err)
	}
	transactions, err := r.ListTransactions(ctx, ownerID, 50)
	if err != nil {
		return core.OwnerSnapshot{}, fmt.Errorf("snapshot transactions: %w", err)
	}

	var total core.Money
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}

	return core.OwnerSnapshot{
		OwnerID:      ownerID,
		Accounts:     accounts,
		Goals:        goals,
		Transactions: transactions,
		TotalBalance: total,
	}, nil
}
