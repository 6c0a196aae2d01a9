package ledger

import "context"

// =============================================================================
// CREDIT - Credit line per client and eligibility evaluation
// =============================================================================

// Credit tracks credit balances and evaluates eligibility.
type Credit struct {
	Store  Store
	Policy EligibilityPolicy
}

func NewCredit(store Store, policy EligibilityPolicy) *Credit {
	if policy == nil {
		policy = DenyAll
	}
	return &Credit{Store: store, Policy: policy}
}

// CreditBalance returns the client's credit balance, zero when absent.
func (c *Credit) CreditBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	return NewBalanceCalculator(c.Store).CreditBalance(ctx, number)
}

// Grant increases the stored credit balance by amount. Eligibility is the
// engine's concern; Grant only validates the amount and the client.
func (c *Credit) Grant(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	if err := requirePositive(amount, "credit grant"); err != nil {
		return Amount{}, err
	}
	if _, err := c.Store.GetClient(ctx, number); err != nil {
		return Amount{}, err
	}
	current, err := c.CreditBalance(ctx, number)
	if err != nil {
		return Amount{}, err
	}
	updated := current.Add(amount)
	if err := c.Store.SetCreditBalance(ctx, CreditBalance{ClientNumber: number, Amount: updated}); err != nil {
		return Amount{}, persistenceError("set credit balance", err)
	}
	return updated, nil
}

// IsEligible evaluates the policy. An unknown client is simply not eligible;
// store failures are reported.
func (c *Credit) IsEligible(ctx context.Context, number ClientNumber) (bool, error) {
	client, err := c.Store.GetClient(ctx, number)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return c.Policy.Eligible(client), nil
}

// ListEligible returns eligible clients by ascending number.
func (c *Credit) ListEligible(ctx context.Context) ([]Client, error) {
	clients, err := c.Store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	eligible := make([]Client, 0, len(clients))
	for _, cl := range clients {
		if c.Policy.Eligible(cl) {
			eligible = append(eligible, cl)
		}
	}
	return eligible, nil
}
