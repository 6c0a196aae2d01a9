package facts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/warp/bank-ledger/ledger"
)

// Collect reads everything the store holds into Facts. Transactions keep
// their insertion order per client; clients are ascending by number.
func Collect(ctx context.Context, store ledger.Store) (*Facts, error) {
	clients, err := store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	facts := &Facts{Clients: clients}

	for _, c := range clients {
		txs, err := store.LoadTransactions(ctx, c.Number)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			facts.Transactions = append(facts.Transactions, Transaction{
				ClientNumber: tx.ClientNumber,
				Amount:       tx.Amount,
				Date:         tx.Date,
			})
		}
	}

	facts.Credits, err = store.ListCreditBalances(ctx)
	if err != nil {
		return nil, err
	}
	return facts, nil
}

// Write renders facts in the fact file format.
func Write(w io.Writer, facts *Facts) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "% clients: client(Number, Name, Agency, City, OpeningDate).")
	for _, c := range facts.Clients {
		fmt.Fprintf(bw, "client(%d, %s, %s, %s, '%s').\n",
			c.Number, quote(c.Name), quote(c.Agency), quote(c.City), c.OpeningDate)
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "% transactions: transaction(Number, Amount, Date).")
	for _, tx := range facts.Transactions {
		fmt.Fprintf(bw, "transaction(%d, %s, '%s').\n", tx.ClientNumber, tx.Amount, tx.Date)
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "% credit: credit_balance(Number, Amount).")
	for _, cb := range facts.Credits {
		fmt.Fprintf(bw, "credit_balance(%d, %s).\n", cb.ClientNumber, cb.Amount)
	}

	return bw.Flush()
}

// Export writes the store's content to w.
func Export(ctx context.Context, store ledger.Store, w io.Writer) error {
	facts, err := Collect(ctx, store)
	if err != nil {
		return err
	}
	return Write(w, facts)
}

// quote escapes backslashes before quotes, matching how Parse reads them.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
